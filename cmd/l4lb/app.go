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

package main

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nabbar/l4lb/internal/adminsrv"
	"github.com/nabbar/l4lb/internal/config"
	"github.com/nabbar/l4lb/internal/gossip"
	"github.com/nabbar/l4lb/internal/logging"
	"github.com/nabbar/l4lb/internal/metrics"
	"github.com/nabbar/l4lb/internal/rule"
)

// app is the process-wide wiring: one config.Manager driving a live set of
// rule.Runner, an optional admin HTTP surface, and an optional gossip node.
// It implements config.ApplyFunc as its reconciliation entry point.
type app struct {
	log          logging.Logger
	logOverride  bool
	metricsReg   *metrics.Registry
	promReg      *prometheus.Registry
	admin        *adminsrv.Server
	cluster      *gossip.Node
	ctx          context.Context

	// fatal carries a startup bind failure (admin or rule listener) out to
	// run(), which exits non-zero. Buffered so firstApply never blocks on it
	// even if nothing is listening yet.
	fatal chan error

	mu    sync.Mutex
	rules map[string]*rule.Runner
}

func newApp(ctx context.Context, log logging.Logger, logOverride bool) *app {
	promReg := prometheus.NewRegistry()
	return &app{
		log:         log,
		logOverride: logOverride,
		promReg:     promReg,
		metricsReg:  metrics.New(promReg),
		ctx:         ctx,
		fatal:       make(chan error, 1),
		rules:       make(map[string]*rule.Runner),
	}
}

// reportFatal pushes err onto the fatal channel without blocking; only the
// first fatal error survives, matching the "process exits" semantics.
func (a *app) reportFatal(err error) {
	select {
	case a.fatal <- err:
	default:
	}
}

// apply is config.ApplyFunc: it reconciles the running process against a
// newly loaded/validated configuration.
func (a *app) apply(old, next *config.File) {
	if old == nil {
		a.firstApply(next)
		return
	}
	a.reconcileRules(old.Rules, next.Rules)

	if !reflect.DeepEqual(old.Cluster, next.Cluster) {
		a.log.Warningf("cluster configuration changed but is not hot-reloaded; restart to apply")
	}
	if old.Admin != next.Admin {
		a.log.Warningf("admin configuration changed but is not hot-reloaded; restart to apply")
	}
}

func (a *app) firstApply(next *config.File) {
	if !a.logOverride {
		a.log.SetLevel(logging.LevelFromString(next.Log.Level))
	}

	if next.Admin.Enabled {
		a.admin = adminsrv.New(next.Admin.Listen, a.promReg, a.log)
		if err := a.admin.Start(); err != nil {
			a.log.Errorf("admin: failed to start: %v", err)
			a.reportFatal(fmt.Errorf("admin: bind %s: %w", next.Admin.Listen, err))
			return
		}
	}

	if next.Cluster.Enabled {
		node, err := gossip.NewNode(gossip.Config{
			Enabled:  next.Cluster.Enabled,
			BindAddr: next.Cluster.BindAddr,
			Peers:    next.Cluster.Peers,
		}, a.log)
		if err != nil {
			a.log.Errorf("cluster: failed to create node: %v", err)
		} else if err := node.Join(); err != nil {
			a.log.Errorf("cluster: failed to join: %v", err)
		} else {
			a.cluster = node
			go a.drainUsageBroadcasts(node)
		}
	}

	a.mu.Lock()
	for _, rc := range next.Rules {
		if !a.startRuleLocked(rc, true) {
			a.mu.Unlock()
			return
		}
	}
	a.mu.Unlock()

	go a.pollBackendGauges()

	if a.admin != nil {
		a.admin.MarkReady()
	}
}

// startRuleLocked creates and starts a Runner for rc; caller holds a.mu. A
// bind failure during initial startup is fatal to the process; the same
// failure during a later hot reload is only ever logged, since the rest of
// the running process must keep serving. Reports false on failure so the
// caller can stop starting further rules.
func (a *app) startRuleLocked(rc config.RuleConfig, fatalOnBindError bool) bool {
	r := rule.New(rc, a.metricsReg, a.log.WithFields(logging.Fields{"rule": rc.Name}))
	if err := r.Start(a.ctx, rc); err != nil {
		a.log.Errorf("rule %s: failed to start: %v", rc.Name, err)
		if fatalOnBindError {
			a.reportFatal(fmt.Errorf("rule %s: bind %s: %w", rc.Name, rc.Listen, err))
		}
		return false
	}
	a.rules[rc.Name] = r
	return true
}

func (a *app) reconcileRules(oldRules, nextRules []config.RuleConfig) {
	diff := config.Diff(oldRules, nextRules)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rc := range diff.Removed {
		if r, ok := a.rules[rc.Name]; ok {
			r.Stop()
			delete(a.rules, rc.Name)
			a.metricsReg.DropRule(rc.Name)
		}
	}
	for _, rc := range diff.Restart {
		if r, ok := a.rules[rc.Name]; ok {
			r.Stop()
			delete(a.rules, rc.Name)
		}
		a.startRuleLocked(rc, false)
	}
	for _, rc := range diff.Added {
		a.startRuleLocked(rc, false)
	}
	for _, rc := range diff.BackendsOnly {
		if r, ok := a.rules[rc.Name]; ok {
			r.ApplyConfig(a.ctx, rc)
		}
	}
}

// pollBackendGauges periodically mirrors each backend's live counter/health
// state into the Prometheus gauges; the hot path itself never touches
// metrics per-byte beyond the pipeline.Metrics calls already wired in.
func (a *app) pollBackendGauges() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			for name, r := range a.rules {
				for _, b := range r.LB.Snapshot().Backends {
					a.metricsReg.BackendActive(name, b.Addr, b.Active())
					a.metricsReg.BackendHealth(name, b.Addr, b.Healthy())
				}
			}
			a.mu.Unlock()
		}
	}
}

// drainUsageBroadcasts consumes decoded cluster broadcasts. Aggregating
// them into a cross-node rate-limiter view is out of scope here; this loop
// exists so the receive channel never blocks the gossip delegate.
func (a *app) drainUsageBroadcasts(node *gossip.Node) {
	for {
		select {
		case <-a.ctx.Done():
			return
		case msg, ok := <-node.Received():
			if !ok {
				return
			}
			a.log.Debugf("cluster: received usage update from node %d: %s=%d", msg.NodeID, msg.Key, msg.Usage)
		}
	}
}

// shutdown stops every rule, the gossip node, and the admin server.
func (a *app) shutdown() {
	a.mu.Lock()
	for name, r := range a.rules {
		r.Stop()
		delete(a.rules, name)
	}
	a.mu.Unlock()

	if a.cluster != nil {
		if err := a.cluster.Leave(); err != nil {
			a.log.Warningf("cluster: leave failed: %v", err)
		}
	}

	if a.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.admin.Shutdown(ctx); err != nil {
			a.log.Warningf("admin: shutdown failed: %v", err)
		}
	}
}
