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

// Package health runs background probes against backends and toggles their
// healthy flag on the owning LoadBalancer.
package health

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nabbar/l4lb/internal/logging"
)

// Protocol selects the probe kind.
type Protocol int

const (
	ProtocolTCP Protocol = iota
	ProtocolHTTP
)

// LoadBalancer is the subset of backend.LoadBalancer the checker needs;
// kept as an interface so the checker can be tested without a real
// backend.LoadBalancer.
type LoadBalancer interface {
	Lookup(addr string) Backend
}

// Backend is the subset of backend.Backend the checker needs.
type Backend interface {
	SetHealthy(v bool) bool
}

// Config describes one backend's health-check task.
type Config struct {
	Addr     string
	Protocol Protocol
	Path     string // HTTP only
	Interval time.Duration
	Timeout  time.Duration
}

// Task runs Config's probe on a loop against lb until its context is canceled.
type Task struct {
	cfg Config
	lb  LoadBalancer
	log logging.Logger
}

// NewTask creates a health-check Task. It does not start running until Run is called.
func NewTask(cfg Config, lb LoadBalancer, log logging.Logger) *Task {
	return &Task{cfg: cfg, lb: lb, log: log}
}

// Run loops probing at cfg.Interval until ctx is canceled.
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.probeOnce(ctx)
		}
	}
}

func (t *Task) probeOnce(ctx context.Context) {
	ok := t.probe(ctx)

	b := t.lb.Lookup(t.cfg.Addr)
	if b == nil {
		// The backend left the snapshot between probes; the result has
		// nowhere to land and is dropped.
		return
	}

	if b.SetHealthy(ok) {
		t.log.Infof("backend %s health transitioned to healthy=%v", t.cfg.Addr, ok)
	}
}

func (t *Task) probe(ctx context.Context) bool {
	dctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", t.cfg.Addr)
	if err != nil {
		return false
	}
	defer conn.Close()

	if t.cfg.Protocol == ProtocolTCP {
		return true
	}

	deadline, _ := dctx.Deadline()
	_ = conn.SetDeadline(deadline)

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", t.cfg.Path, t.cfg.Addr)
	if _, err := conn.Write([]byte(req)); err != nil {
		return false
	}

	buf := make([]byte, 1024)
	n, _ := conn.Read(buf)
	return bytes.Contains(buf[:n], []byte("200 OK"))
}
