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

// Package backend implements the round-robin backend selector: a wait-free
// snapshot of upstream addresses, gated by drain/health/connection-cap, plus
// the scope-bound guard that keeps each backend's active-connection counter
// correct on every exit path.
package backend

import (
	"sync/atomic"
)

// Backend is one upstream TCP endpoint. It survives config reloads that
// reuse the same address: counters and health state carry over.
type Backend struct {
	Addr string

	active  atomic.Uint64
	healthy atomic.Bool
	drain   atomic.Bool
}

// NewBackend creates a Backend, optimistically healthy and not draining.
func NewBackend(addr string, drain bool) *Backend {
	b := &Backend{Addr: addr}
	b.healthy.Store(true)
	b.drain.Store(drain)
	return b
}

// Active returns the current number of in-flight connections to this backend.
func (b *Backend) Active() uint64 {
	return b.active.Load()
}

// Healthy reports whether the last health probe (if any) passed.
func (b *Backend) Healthy() bool {
	return b.healthy.Load()
}

// Draining reports whether this backend must not receive new connections.
func (b *Backend) Draining() bool {
	return b.drain.Load()
}

// SetHealthy updates the health flag. Returns true if the value changed,
// so callers only log on an actual transition.
func (b *Backend) SetHealthy(v bool) (changed bool) {
	for {
		old := b.healthy.Load()
		if old == v {
			return false
		}
		if b.healthy.CompareAndSwap(old, v) {
			return true
		}
	}
}

// SetDrain updates the drain flag from a reload.
func (b *Backend) SetDrain(v bool) {
	b.drain.Store(v)
}

// eligible reports whether b may receive a new connection given cap (0 = unlimited).
func (b *Backend) eligible(cap uint64) bool {
	if b.Draining() || !b.Healthy() {
		return false
	}
	if cap > 0 && b.Active() >= cap {
		return false
	}
	return true
}

// Snapshot is an immutable, versioned view of a rule's backend list. It is
// published by a single atomic pointer swap (see LoadBalancer.UpdateBackends):
// readers observe the old or the new list, in full, never a torn view.
type Snapshot struct {
	Backends []*Backend
}

// ConnectionGuard keeps a Backend's active-connection counter incremented
// for as long as it is alive. Release decrements exactly once, even if
// called multiple times or from a deferred cleanup on every exit path.
type ConnectionGuard struct {
	backend  *Backend
	released atomic.Bool
}

// Release decrements the backend's active-connection counter. Safe to call
// more than once; only the first call has an effect, so double-decrement
// from both a defer and an explicit call is impossible.
func (g *ConnectionGuard) Release() {
	if g == nil {
		return
	}
	if g.released.CompareAndSwap(false, true) {
		g.backend.active.Add(^uint64(0))
	}
}

// Backend returns the backend this guard is holding a slot on.
func (g *ConnectionGuard) Backend() *Backend {
	return g.backend
}
