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

package ratelimit

import "sync"

// RateLimiter gates new connections per source IP: rps/burst request
// buckets, created lazily and kept for the process lifetime (no eviction —
// the map is left unbounded, leaving periodic GC to a future add).
type RateLimiter struct {
	enabled bool
	rps     float64
	burst   float64

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewRateLimiter creates a RateLimiter. When enabled is false, Allow always
// returns true and no bucket is ever created.
func NewRateLimiter(enabled bool, rps, burst float64) *RateLimiter {
	return &RateLimiter{
		enabled: enabled,
		rps:     rps,
		burst:   burst,
		buckets: make(map[string]*TokenBucket),
	}
}

// Allow reports whether a new request from ip may proceed, consuming one
// token from its bucket on success.
func (r *RateLimiter) Allow(ip string) bool {
	bucket, ok := r.bucketFor(ip)
	if !ok {
		return true
	}
	return bucket.TryAcquire(1)
}

// bucketFor returns the bucket for ip and true, or (nil, false) if the
// limiter is disabled.
func (r *RateLimiter) bucketFor(ip string) (*TokenBucket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return nil, false
	}

	b, ok := r.buckets[ip]
	if !ok {
		b = NewTokenBucket(r.rps, r.burst)
		r.buckets[ip] = b
	}
	return b, true
}

// Enabled reports whether this limiter actually gates anything.
func (r *RateLimiter) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Update replaces the limiter's enabled/rps/burst parameters and drops
// every existing per-IP bucket, so already-tracked IPs are governed by the
// new rate on their next request instead of a bucket sized for the old
// one. Called from a rule's reload path; never touches the listener.
func (r *RateLimiter) Update(enabled bool, rps, burst float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
	r.rps = rps
	r.burst = burst
	r.buckets = make(map[string]*TokenBucket)
}
