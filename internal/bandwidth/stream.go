/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package bandwidth

import (
	"context"
	"net"

	"github.com/nabbar/l4lb/internal/ratelimit"
)

// RateLimitedStream wraps a net.Conn, interposing token acquisition on each
// direction independently. A nil bucket on either side means that direction
// is unrated: calls fall straight through to the inner connection.
//
// Only one blocking acquire may be outstanding per direction at a time; the
// chunk cap keeps every request at or below the bucket's burst, so a wait
// always eventually resolves.
type RateLimitedStream struct {
	net.Conn

	readBucket  *ratelimit.TokenBucket
	writeBucket *ratelimit.TokenBucket

	chunkCap int
}

// NewRateLimitedStream wraps conn. Either bucket may be nil to leave that
// direction unrated.
func NewRateLimitedStream(conn net.Conn, readBucket, writeBucket *ratelimit.TokenBucket) *RateLimitedStream {
	return &RateLimitedStream{
		Conn:        conn,
		readBucket:  readBucket,
		writeBucket: writeBucket,
		chunkCap:    defaultChunkCap,
	}
}

// Read acquires up to chunkCap tokens before issuing a bounded read on the
// inner connection, reporting back the inner stream's actual byte count.
func (s *RateLimitedStream) Read(p []byte) (int, error) {
	if s.readBucket == nil {
		return s.Conn.Read(p)
	}

	m := len(p)
	if m > s.chunkCap {
		m = s.chunkCap
	}

	if err := s.readBucket.WaitFor(context.Background(), float64(m)); err != nil {
		return 0, err
	}
	return s.Conn.Read(p[:m])
}

// Write acquires up to chunkCap tokens per turn and issues bounded writes
// until p is fully drained or an error occurs.
func (s *RateLimitedStream) Write(p []byte) (int, error) {
	if s.writeBucket == nil {
		return s.Conn.Write(p)
	}

	total := 0
	for total < len(p) {
		m := len(p) - total
		if m > s.chunkCap {
			m = s.chunkCap
		}

		if err := s.writeBucket.WaitFor(context.Background(), float64(m)); err != nil {
			return total, err
		}

		n, err := s.Conn.Write(p[total : total+m])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errWriteZero
		}
	}
	return total, nil
}

// CloseWrite forwards a half-close to the inner connection when it supports
// one (true for *net.TCPConn and *tls.Conn), unrated.
func (s *RateLimitedStream) CloseWrite() error {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := s.Conn.(writeCloser); ok {
		return wc.CloseWrite()
	}
	return s.Conn.Close()
}

type writeZeroError struct{}

func (writeZeroError) Error() string { return "bandwidth: write returned zero with non-empty buffer" }

var errWriteZero error = writeZeroError{}
