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

package backend

import (
	"sync/atomic"

	"github.com/nabbar/l4lb/internal/atomicx"
)

// LoadBalancer selects a backend for each new connection of one rule, round
// robin over the current Snapshot, skipping drained/unhealthy/at-cap
// backends. One LoadBalancer lives for the process lifetime of its rule.
type LoadBalancer struct {
	Name string

	snapshot atomicx.Value[*Snapshot]
	cursor   atomic.Uint64
	cap      atomic.Uint64 // 0 = unlimited, per-backend connection cap
}

// NewLoadBalancer creates a LoadBalancer with an empty backend set.
func NewLoadBalancer(name string, perBackendCap uint64) *LoadBalancer {
	lb := &LoadBalancer{Name: name}
	lb.cap.Store(perBackendCap)
	lb.snapshot.Store(&Snapshot{})
	return lb
}

// Snapshot returns the currently published backend view.
func (lb *LoadBalancer) Snapshot() *Snapshot {
	return lb.snapshot.Load()
}

// NextBackend does a fetch-and-increment of the cursor, then scans
// N positions starting there, skip ineligible backends, atomically claim the
// first eligible one. Returns (nil, nil) when none is available.
func (lb *LoadBalancer) NextBackend() (*Backend, *ConnectionGuard) {
	snap := lb.snapshot.Load()
	n := len(snap.Backends)
	if n == 0 {
		return nil, nil
	}

	cap := lb.cap.Load()
	start := int((lb.cursor.Add(1) - 1) % uint64(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		b := snap.Backends[idx]

		if !b.eligible(cap) {
			continue
		}

		b.active.Add(1)
		return b, &ConnectionGuard{backend: b}
	}

	return nil, nil
}

// BackendConfig is the reload-time description of one backend.
type BackendConfig struct {
	Addr  string
	Drain bool
}

// UpdateBackends builds a new Snapshot from cfg: a Backend whose address
// matches an existing one is reused verbatim (counter/health survive the
// reload, drain is overwritten from cfg); a new address gets a fresh,
// optimistically-healthy Backend. The new Snapshot is published with a
// single atomic pointer swap — concurrent NextBackend calls observe either
// the whole old list or the whole new one, never a mix.
func (lb *LoadBalancer) UpdateBackends(cfg []BackendConfig) {
	old := lb.snapshot.Load()
	existing := make(map[string]*Backend, len(old.Backends))
	for _, b := range old.Backends {
		existing[b.Addr] = b
	}

	next := &Snapshot{Backends: make([]*Backend, 0, len(cfg))}
	for _, c := range cfg {
		if b, ok := existing[c.Addr]; ok {
			b.SetDrain(c.Drain)
			next.Backends = append(next.Backends, b)
		} else {
			next.Backends = append(next.Backends, NewBackend(c.Addr, c.Drain))
		}
	}

	lb.snapshot.Store(next)
}

// SetPerBackendCap updates the per-backend connection cap on reload (0 = unlimited).
func (lb *LoadBalancer) SetPerBackendCap(cap uint64) {
	lb.cap.Store(cap)
}

// Lookup returns the Backend for addr in the current snapshot, or nil.
// Used by the health checker to apply a probe result;
// a probe for an address that disappeared on reload finds nothing and its
// result is silently dropped.
func (lb *LoadBalancer) Lookup(addr string) *Backend {
	snap := lb.snapshot.Load()
	for _, b := range snap.Backends {
		if b.Addr == addr {
			return b
		}
	}
	return nil
}
