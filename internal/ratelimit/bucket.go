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

// Package ratelimit implements a continuous-refill token bucket and the
// per-source-IP request limiter built on top of it. Bandwidth shaping
// (internal/bandwidth) reuses the same TokenBucket for byte-rate limiting.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket holds tokens ∈ [0, burst], refilled continuously at rate
// tokens/sec. Safe for concurrent use; the critical section held per access
// is short, the wait (if any) happens outside of it.
type TokenBucket struct {
	mu sync.Mutex

	rate   float64
	burst  float64
	tokens float64
	last   time.Time

	now func() time.Time // overridable for deterministic tests
}

// NewTokenBucket creates a bucket starting full: a fresh key should not
// immediately throttle.
func NewTokenBucket(rate, burst float64) *TokenBucket {
	return &TokenBucket{
		rate:   rate,
		burst:  burst,
		tokens: burst,
		last:   time.Now(),
		now:    time.Now,
	}
}

func (b *TokenBucket) refillLocked() {
	n := b.now()
	elapsed := n.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = n
}

// TryAcquire deducts n tokens iff at least n are available, returning
// whether it succeeded.
func (b *TokenBucket) TryAcquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Available returns the current token count, for introspection/tests.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// WaitFor blocks until n tokens have been deducted, or ctx is done. The
// bucket's lock is never held across the sleep: each iteration re-takes the
// lock only to check and possibly deduct.
func (b *TokenBucket) WaitFor(ctx context.Context, n float64) error {
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.tokens >= n {
			b.tokens -= n
			b.mu.Unlock()
			return nil
		}
		deficit := n - b.tokens
		wait := time.Duration(deficit / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
