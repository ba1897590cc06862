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

// Package adminsrv exposes the process-wide admin HTTP surface: Prometheus
// scraping at /metrics and a liveness probe at /healthz. It binds its own
// listener, independent of any proxy rule.
package adminsrv

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	liberr "github.com/nabbar/l4lb/internal/errors"
	"github.com/nabbar/l4lb/internal/logging"
)

const codeListen liberr.CodeError = liberr.MinPkgAdmin + iota + 1

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgAdmin, func(code liberr.CodeError) string {
		if code == codeListen {
			return "unable to bind admin listener"
		}
		return ""
	})
}

// Server is the admin HTTP listener. Start is non-blocking; Shutdown stops it.
type Server struct {
	addr string
	log  logging.Logger
	reg  *prometheus.Registry

	ready atomic.Bool
	srv   *http.Server
	ln    net.Listener
}

// New creates a Server that will bind addr and serve reg's metrics once Start runs.
func New(addr string, reg *prometheus.Registry, log logging.Logger) *Server {
	return &Server{addr: addr, reg: reg, log: log}
}

// MarkReady flips /healthz to 200; called once the first configuration has
// loaded successfully.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// Start binds the listener and begins serving in a background goroutine.
// It returns once the listener is bound, so a caller can rely on the admin
// port being open immediately after Start returns.
func (s *Server) Start() liberr.Error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return liberr.New(codeListen, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.srv = &http.Server{Handler: mux}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("admin: server error: %v", err)
		}
	}()

	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
