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

// Package pipeline composes backend selection, rate limiting, optional TLS,
// the PROXY-v2 prelude, and bandwidth-limited bidirectional copy into the
// per-connection control flow run by each rule's acceptors.
package pipeline

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/nabbar/l4lb/internal/backend"
	"github.com/nabbar/l4lb/internal/bandwidth"
	"github.com/nabbar/l4lb/internal/logging"
	"github.com/nabbar/l4lb/internal/proxyproto"
	"github.com/nabbar/l4lb/internal/ratelimit"
	"github.com/nabbar/l4lb/internal/tlsconf"
)

// errWriteZero is returned by the copy pump when a sink's Write reports 0
// for a non-empty buffer (a zero-progress guard).
var errWriteZero = errors.New("pipeline: write returned zero for a non-empty buffer")

// Metrics is the subset of metrics recording this pipeline performs; kept
// as an interface so it can be exercised without the prometheus registry.
type Metrics interface {
	ConnectionOpened(rule string)
	ConnectionClosed(rule string, duration time.Duration)
	BytesTransferred(rule, direction string, n int64)
}

// Rule bundles everything one listener's pipeline needs per connection.
type Rule struct {
	Name string

	LB          *backend.LoadBalancer
	RateLimiter *ratelimit.RateLimiter
	Bandwidth   *bandwidth.Manager
	ListenerTLS *tlsconf.ListenerConfig
	BackendTLS  *tlsconf.BackendConfig
	ProxyV2     bool

	DialTimeout time.Duration
	Metrics     Metrics
	Log         logging.Logger
}

// Handle runs the full connection pipeline for one accepted connection. It
// blocks until both directions have completed, then closes both sides.
func (r *Rule) Handle(ctx context.Context, client net.Conn) {
	defer client.Close()

	clientIP := hostOf(client.RemoteAddr())

	if r.RateLimiter != nil && !r.RateLimiter.Allow(clientIP) {
		r.Log.Debugf("rule %s: rate limit denied connection from %s", r.Name, clientIP)
		return
	}

	be, guard := r.LB.NextBackend()
	if be == nil {
		r.Log.Debugf("rule %s: no backend available", r.Name)
		return
	}
	defer guard.Release()

	dialCtx, cancel := context.WithTimeout(ctx, r.dialTimeout())
	defer cancel()

	var d net.Dialer
	backendConn, err := d.DialContext(dialCtx, "tcp", be.Addr)
	if err != nil {
		r.Log.Debugf("rule %s: dial %s failed: %v", r.Name, be.Addr, err)
		return
	}
	defer backendConn.Close()

	if tc, ok := backendConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	if r.ProxyV2 {
		if err := writeProxyHeader(backendConn, client.RemoteAddr(), backendConn.LocalAddr()); err != nil {
			r.Log.Debugf("rule %s: writing PROXY header to %s failed: %v", r.Name, be.Addr, err)
			return
		}
	}

	var backendSide net.Conn = backendConn
	if r.BackendTLS != nil && r.BackendTLS.Enabled {
		tlsConn, err := dialBackendTLS(dialCtx, backendConn, r.BackendTLS.ConfigFor(be.Addr))
		if err != nil {
			r.Log.Debugf("rule %s: backend TLS handshake with %s failed: %v", r.Name, be.Addr, err)
			return
		}
		backendSide = tlsConn
	}

	var clientSide net.Conn = client
	if r.ListenerTLS != nil && r.ListenerTLS.Enabled {
		tlsCfg, lerr := r.ListenerTLS.Build()
		if lerr != nil {
			r.Log.Errorf("rule %s: listener TLS config invalid: %v", r.Name, lerr)
			return
		}
		tlsConn := tlsServerHandshake(client, tlsCfg)
		if tlsConn == nil {
			return
		}
		clientSide = tlsConn
	}

	if r.Bandwidth != nil {
		clientSide = bandwidth.NewRateLimitedStream(clientSide, r.Bandwidth.ClientUpload(clientIP), r.Bandwidth.ClientDownload(clientIP))
		backendSide = bandwidth.NewRateLimitedStream(backendSide, r.Bandwidth.BackendDownload(be.Addr), r.Bandwidth.BackendUpload(be.Addr))
	}

	if r.Metrics != nil {
		r.Metrics.ConnectionOpened(r.Name)
	}
	start := time.Now()

	c2b, b2c := copyBidirectional(clientSide, backendSide)

	if r.Metrics != nil {
		r.Metrics.ConnectionClosed(r.Name, time.Since(start))
		r.Metrics.BytesTransferred(r.Name, "client_in", c2b)
		r.Metrics.BytesTransferred(r.Name, "backend_out", c2b)
		r.Metrics.BytesTransferred(r.Name, "backend_in", b2c)
		r.Metrics.BytesTransferred(r.Name, "client_out", b2c)
	}
}

func (r *Rule) dialTimeout() time.Duration {
	if r.DialTimeout > 0 {
		return r.DialTimeout
	}
	return 10 * time.Second
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func writeProxyHeader(w net.Conn, src, dst net.Addr) error {
	srcTCP, srcOK := src.(*net.TCPAddr)
	dstTCP, dstOK := dst.(*net.TCPAddr)
	if !srcOK || !dstOK {
		return nil
	}
	_, err := w.Write(proxyproto.EncodeTCP(srcTCP, dstTCP))
	return err
}
