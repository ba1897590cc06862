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

// Package bandwidth shapes per-flow byte throughput with four token-bucket
// maps (client/backend × upload/download) and a RateLimitedStream that
// interposes chunked token acquisition between a duplex stream and its
// caller.
package bandwidth

import (
	"sync"

	"github.com/nabbar/l4lb/internal/ratelimit"
)

// defaultChunkCap bounds how many bytes a single read/write turn may
// request from its bucket, keeping n ≤ burst so waits always terminate.
const defaultChunkCap = 16 * 1024

// burstWindow is the number of seconds of steady-state rate used to size a
// newly created bucket's burst when the caller does not specify one.
const burstWindow = 1.0

// direction identifies one of the four bucket maps.
type direction int

const (
	clientUpload direction = iota
	clientDownload
	backendUpload
	backendDownload
)

// Config holds the byte/sec rates for one Manager; a zero rate on a
// sub-config (or Enabled=false) disables limiting on that path.
type Config struct {
	Enabled bool

	ClientUploadPerSec   float64
	ClientDownloadPerSec float64

	BackendUploadPerSec   float64
	BackendDownloadPerSec float64
}

// Manager owns the four lazily-populated bucket maps for one rule.
type Manager struct {
	cfg Config

	mu   sync.Mutex
	maps [4]map[string]*ratelimit.TokenBucket
}

// NewManager creates a Manager from cfg. When cfg.Enabled is false, every
// lookup short-circuits to "no limit" and no bucket is ever created.
func NewManager(cfg Config) *Manager {
	m := &Manager{cfg: cfg}
	for i := range m.maps {
		m.maps[i] = make(map[string]*ratelimit.TokenBucket)
	}
	return m
}

func (m *Manager) rateForLocked(d direction) float64 {
	switch d {
	case clientUpload:
		return m.cfg.ClientUploadPerSec
	case clientDownload:
		return m.cfg.ClientDownloadPerSec
	case backendUpload:
		return m.cfg.BackendUploadPerSec
	case backendDownload:
		return m.cfg.BackendDownloadPerSec
	}
	return 0
}

// bucketFor returns the bucket for (d, key), creating it lazily, or nil if
// limiting is disabled for this manager or this direction has rate 0.
func (m *Manager) bucketFor(d direction, key string) *ratelimit.TokenBucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled {
		return nil
	}
	rate := m.rateForLocked(d)
	if rate <= 0 {
		return nil
	}

	bucket, ok := m.maps[d][key]
	if !ok {
		burst := rate * burstWindow
		if burst < defaultChunkCap {
			burst = defaultChunkCap
		}
		bucket = ratelimit.NewTokenBucket(rate, burst)
		m.maps[d][key] = bucket
	}
	return bucket
}

// Update replaces cfg and drops every existing bucket, so already-tracked
// flows are governed by the new rate on their next chunk instead of a
// bucket sized for the old one. Called from a rule's reload path; never
// touches the listener.
func (m *Manager) Update(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	for i := range m.maps {
		m.maps[i] = make(map[string]*ratelimit.TokenBucket)
	}
}

// ClientUpload returns the upload bucket (client → backend direction, i.e.
// reads off the client socket) for a given client IP.
func (m *Manager) ClientUpload(clientIP string) *ratelimit.TokenBucket {
	return m.bucketFor(clientUpload, clientIP)
}

// ClientDownload returns the download bucket (backend → client direction,
// i.e. writes to the client socket) for a given client IP.
func (m *Manager) ClientDownload(clientIP string) *ratelimit.TokenBucket {
	return m.bucketFor(clientDownload, clientIP)
}

// BackendUpload returns the upload bucket (client → backend direction,
// i.e. writes to the backend socket) for a given backend key.
func (m *Manager) BackendUpload(backendKey string) *ratelimit.TokenBucket {
	return m.bucketFor(backendUpload, backendKey)
}

// BackendDownload returns the download bucket (backend → client direction,
// i.e. reads off the backend socket) for a given backend key.
func (m *Manager) BackendDownload(backendKey string) *ratelimit.TokenBucket {
	return m.bucketFor(backendDownload, backendKey)
}
