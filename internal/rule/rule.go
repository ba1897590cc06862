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

// Package rule assembles one configured listener into a runnable unit: the
// LoadBalancer, rate limiter, bandwidth manager, health-check supervisor,
// and connection pipeline, bound to a real net.Listener and an acceptor
// pool (NUM_ACCEPTORS / SO_REUSEPORT).
package rule

import (
	"context"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nabbar/l4lb/internal/backend"
	"github.com/nabbar/l4lb/internal/bandwidth"
	"github.com/nabbar/l4lb/internal/config"
	liberr "github.com/nabbar/l4lb/internal/errors"
	"github.com/nabbar/l4lb/internal/health"
	"github.com/nabbar/l4lb/internal/logging"
	"github.com/nabbar/l4lb/internal/pipeline"
	"github.com/nabbar/l4lb/internal/ratelimit"
	"github.com/nabbar/l4lb/internal/tlsconf"
)

const codeListen liberr.CodeError = liberr.MinPkgPipeline + 50 + iota

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgPipeline+50, func(code liberr.CodeError) string {
		if code == codeListen {
			return "unable to bind rule listener"
		}
		return ""
	})
}

// healthLBAdapter narrows *backend.LoadBalancer to the interface
// internal/health.Task needs, converting its concrete *backend.Backend
// return into the health.Backend interface at the boundary.
type healthLBAdapter struct {
	lb *backend.LoadBalancer
}

func (a healthLBAdapter) Lookup(addr string) health.Backend {
	b := a.lb.Lookup(addr)
	if b == nil {
		return nil
	}
	return b
}

// Runner owns everything needed to accept and serve connections for one
// configured rule: its LoadBalancer, limiters, health supervisor, and the
// bound listener(s) driving pipeline.Rule.Handle.
type Runner struct {
	Name string

	LB          *backend.LoadBalancer
	RateLimiter *ratelimit.RateLimiter
	Bandwidth   *bandwidth.Manager
	Health      *health.Supervisor

	pipe *pipeline.Rule
	log  logging.Logger

	mu        sync.Mutex
	listeners []net.Listener
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// New builds a Runner from one RuleConfig. It does not bind any listener or
// start any background task yet; call Start for that.
func New(cfg config.RuleConfig, metrics pipeline.Metrics, log logging.Logger) *Runner {
	lb := backend.NewLoadBalancer(cfg.Name, cfg.BackendConnectionLimit)
	lb.UpdateBackends(backendConfigs(cfg.Backends))

	rl := ratelimit.NewRateLimiter(cfg.RateLimit.Enabled, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	bw := bandwidth.NewManager(bandwidthConfig(cfg))

	r := &Runner{
		Name:        cfg.Name,
		LB:          lb,
		RateLimiter: rl,
		Bandwidth:   bw,
		log:         log,
	}
	r.Health = health.NewSupervisor(healthLBAdapter{lb: lb}, log)

	r.pipe = &pipeline.Rule{
		Name:        cfg.Name,
		LB:          lb,
		RateLimiter: rl,
		Bandwidth:   bw,
		ListenerTLS: listenerTLSConfig(cfg),
		BackendTLS:  backendTLSConfig(cfg),
		ProxyV2:     cfg.ProxyProtocolV2,
		Metrics:     metrics,
		Log:         log,
	}

	return r
}

func bandwidthConfig(cfg config.RuleConfig) bandwidth.Config {
	return bandwidth.Config{
		Enabled:               cfg.BandwidthLimit.Enabled,
		ClientUploadPerSec:    cfg.BandwidthLimit.Client.UploadPerSec,
		ClientDownloadPerSec:  cfg.BandwidthLimit.Client.DownloadPerSec,
		BackendUploadPerSec:   cfg.BandwidthLimit.Backend.UploadPerSec,
		BackendDownloadPerSec: cfg.BandwidthLimit.Backend.DownloadPerSec,
	}
}

func backendConfigs(specs []config.BackendSpec) []backend.BackendConfig {
	out := make([]backend.BackendConfig, 0, len(specs))
	for _, s := range specs {
		out = append(out, backend.BackendConfig{Addr: s.Addr, Drain: s.Drain})
	}
	return out
}

func listenerTLSConfig(cfg config.RuleConfig) *tlsconf.ListenerConfig {
	if !cfg.TLS.Enabled {
		return &tlsconf.ListenerConfig{Enabled: false}
	}
	return &tlsconf.ListenerConfig{Enabled: true, CertFile: cfg.TLS.Cert, KeyFile: cfg.TLS.Key}
}

func backendTLSConfig(cfg config.RuleConfig) *tlsconf.BackendConfig {
	return &tlsconf.BackendConfig{Enabled: cfg.BackendTLS.Enabled, IgnoreVerify: cfg.BackendTLS.IgnoreVerify}
}

// healthConfigs converts a rule's backend + health_check config into the
// []health.Config the Supervisor reconciles against.
func healthConfigs(cfg config.RuleConfig) []health.Config {
	if !cfg.HealthCheck.Enabled {
		return nil
	}
	proto := health.ProtocolTCP
	if cfg.HealthCheck.Protocol == "http" {
		proto = health.ProtocolHTTP
	}
	interval := time.Duration(cfg.HealthCheck.IntervalMs) * time.Millisecond
	timeout := time.Duration(cfg.HealthCheck.TimeoutMs) * time.Millisecond

	out := make([]health.Config, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		out = append(out, health.Config{
			Addr:     b.Addr,
			Protocol: proto,
			Path:     cfg.HealthCheck.Path,
			Interval: interval,
			Timeout:  timeout,
		})
	}
	return out
}

// acceptorCount resolves the per-rule acceptor pool size: the NUM_ACCEPTORS
// environment variable if set and valid, else available parallelism.
func acceptorCount() int {
	if v := os.Getenv("NUM_ACCEPTORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return runtime.GOMAXPROCS(0)
}

// Start binds the rule's listener(s) and begins accepting. On unix
// platforms with more than one acceptor, it binds one SO_REUSEPORT
// listener per acceptor so the kernel load-spreads accepts; elsewhere a
// single listener is shared by every acceptor goroutine.
func (r *Runner) Start(ctx context.Context, cfg config.RuleConfig) liberr.Error {
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	r.mu.Lock()
	r.cancel = cancel
	r.group = group
	r.mu.Unlock()

	r.Health.Sync(ctx, healthConfigs(cfg))

	n := acceptorCount()

	var err liberr.Error
	if reusePortSupported && n > 1 {
		err = r.startMultiListener(gctx, cfg.Listen, n)
	} else {
		err = r.startSingleListener(gctx, cfg.Listen, n)
	}
	if err != nil {
		cancel()
		return err
	}

	go func() {
		if werr := group.Wait(); werr != nil && ctx.Err() == nil {
			r.log.Warningf("rule %s: acceptor pool exited: %v", r.Name, werr)
		}
	}()

	return nil
}

func (r *Runner) startMultiListener(ctx context.Context, addr string, n int) liberr.Error {
	lc := net.ListenConfig{Control: listenConfig(n)}

	listeners := make([]net.Listener, 0, n)
	for i := 0; i < n; i++ {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return liberr.New(codeListen, err)
		}
		listeners = append(listeners, ln)
	}

	r.mu.Lock()
	r.listeners = listeners
	r.mu.Unlock()

	for _, ln := range listeners {
		ln := ln
		r.group.Go(func() error { return r.acceptLoop(ctx, ln) })
	}
	return nil
}

func (r *Runner) startSingleListener(ctx context.Context, addr string, acceptors int) liberr.Error {
	lc := net.ListenConfig{Control: listenConfig(1)}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return liberr.New(codeListen, err)
	}

	r.mu.Lock()
	r.listeners = []net.Listener{ln}
	r.mu.Unlock()

	for i := 0; i < acceptors; i++ {
		r.group.Go(func() error { return r.acceptLoop(ctx, ln) })
	}
	return nil
}

// acceptLoop runs until ctx is canceled, logging and continuing past any
// Accept error in between rather than tearing down the acceptor pool. It
// reports nil to the owning errgroup on clean shutdown,
// which is the only exit this loop has.
func (r *Runner) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				r.log.Warningf("rule %s: accept error: %v", r.Name, err)
				continue
			}
		}
		go r.pipe.Handle(ctx, conn)
	}
}

// Listeners returns the currently bound listeners, for tests and for
// Manager's "same name keeps its listener" reload contract.
func (r *Runner) Listeners() []net.Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]net.Listener(nil), r.listeners...)
}

// ApplyConfig updates the live backend set, per-backend cap, rate limiter,
// bandwidth ceilings, and health checkers from a reloaded RuleConfig
// without closing the listener. RateLimiter and Bandwidth are updated in
// place (see their Update methods) so pipe, which holds the same pointers,
// observes the new parameters on the very next connection.
func (r *Runner) ApplyConfig(ctx context.Context, cfg config.RuleConfig) {
	r.LB.SetPerBackendCap(cfg.BackendConnectionLimit)
	r.LB.UpdateBackends(backendConfigs(cfg.Backends))
	r.RateLimiter.Update(cfg.RateLimit.Enabled, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	r.Bandwidth.Update(bandwidthConfig(cfg))
	r.Health.Sync(ctx, healthConfigs(cfg))
}

// Stop cancels the accept loops, closes the listener(s), and stops health
// checking. In-flight connections are left to complete on their own
// (no forced drain, a stated Non-goal).
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	listeners := r.listeners
	r.listeners = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ln := range listeners {
		_ = ln.Close()
	}
	r.Health.Stop()
}
