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

package health

import (
	"context"
	"sync"

	"github.com/nabbar/l4lb/internal/logging"
)

// Supervisor keeps at most one running Task per backend address, keeping
// an address's existing Task across reloads and stopping it outright when
// the backend disappears from the rule's config, instead of spawning a
// fresh checker on every reload. A running Task is not restarted when only
// its probe settings change.
type Supervisor struct {
	lb  LoadBalancer
	log logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewSupervisor creates a Supervisor bound to lb.
func NewSupervisor(lb LoadBalancer, log logging.Logger) *Supervisor {
	return &Supervisor{lb: lb, log: log, active: make(map[string]context.CancelFunc)}
}

// Sync reconciles the running checker set against cfgs: addresses missing
// from cfgs are canceled, addresses present but unconfigured-for-health are
// left alone by the caller (cfgs should simply omit them), and any address
// already running keeps its existing Task untouched — Sync never restarts
// a checker solely because UpdateBackends was called.
func (s *Supervisor) Sync(parent context.Context, cfgs []Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]Config, len(cfgs))
	for _, c := range cfgs {
		want[c.Addr] = c
	}

	for addr, cancel := range s.active {
		if _, ok := want[addr]; !ok {
			cancel()
			delete(s.active, addr)
		}
	}

	for addr, cfg := range want {
		if _, ok := s.active[addr]; ok {
			continue
		}
		ctx, cancel := context.WithCancel(parent)
		s.active[addr] = cancel
		task := NewTask(cfg, s.lb, s.log)
		go task.Run(ctx)
	}
}

// Stop cancels every running checker.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, cancel := range s.active {
		cancel()
		delete(s.active, addr)
	}
}

// Running reports the set of addresses currently being checked, for tests.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for addr := range s.active {
		out = append(out, addr)
	}
	return out
}
