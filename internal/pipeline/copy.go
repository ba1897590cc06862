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

package pipeline

import (
	"io"
	"net"
	"sync"
)

// halfCloser is satisfied by *net.TCPConn, *tls.Conn, and
// bandwidth.RateLimitedStream — anything that can shut down its write side
// independently of a full Close.
type halfCloser interface {
	CloseWrite() error
}

// pump copies from src to dst until src reports EOF, then shuts down dst's
// write side. Each direction runs its own pump so copyBidirectional only
// returns once both have fully drained, never on the first EOF seen in
// either direction.
func pump(dst, src net.Conn) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			written := 0
			for written < n {
				w, werr := dst.Write(buf[written:n])
				if w == 0 && werr == nil {
					return total, errWriteZero
				}
				written += w
				total += int64(w)
				if werr != nil {
					return total, werr
				}
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				if hc, ok := dst.(halfCloser); ok {
					_ = hc.CloseWrite()
				} else {
					_ = dst.Close()
				}
				return total, nil
			}
			return total, rerr
		}
	}
}

// copyBidirectional runs two independent pumps — a→b and b→a — and returns
// once both have completed, reporting the byte counts of each direction.
func copyBidirectional(a, b net.Conn) (aToB int64, bToA int64) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		aToB, _ = pump(b, a)
	}()
	go func() {
		defer wg.Done()
		bToA, _ = pump(a, b)
	}()

	wg.Wait()
	return aToB, bToA
}
