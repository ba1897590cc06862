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

// Package metrics registers and updates the l4lb Prometheus series:
// per-rule connection gauges/counters, per-backend health and
// connection-count gauges, and a connection-duration histogram.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// durationBuckets covers sub-millisecond up to five-minute connections.
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}

// Registry owns every l4lb_* series and the registerer they are attached
// to. One Registry exists per process.
type Registry struct {
	reg prometheus.Registerer

	activeConnections      *prometheus.GaugeVec
	backendActiveConns     *prometheus.GaugeVec
	backendHealth          *prometheus.GaugeVec
	connectionsTotal       *prometheus.CounterVec
	trafficBytesTotal      *prometheus.CounterVec
	connectionDurationSecs *prometheus.HistogramVec
}

// New creates a Registry and registers all its series on reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		reg: reg,
		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "l4lb_active_connections",
			Help: "Current number of open client connections for a rule.",
		}, []string{"rule"}),
		backendActiveConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "l4lb_backend_active_connections",
			Help: "Current number of open connections to a backend.",
		}, []string{"rule", "addr"}),
		backendHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "l4lb_backend_health_status",
			Help: "1 if the backend's last health probe passed, 0 otherwise.",
		}, []string{"rule", "addr"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "l4lb_connections_total",
			Help: "Total number of connections accepted for a rule.",
		}, []string{"rule"}),
		trafficBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "l4lb_traffic_bytes_total",
			Help: "Total bytes transferred, by rule and direction.",
		}, []string{"rule", "direction"}),
		connectionDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "l4lb_connection_duration_seconds",
			Help:    "Connection lifetime from accept to full close.",
			Buckets: durationBuckets,
		}, []string{"rule"}),
	}

	reg.MustRegister(
		m.activeConnections,
		m.backendActiveConns,
		m.backendHealth,
		m.connectionsTotal,
		m.trafficBytesTotal,
		m.connectionDurationSecs,
	)

	return m
}

// ConnectionOpened records a new connection accepted on rule, satisfying
// pipeline.Metrics.
func (m *Registry) ConnectionOpened(rule string) {
	m.activeConnections.WithLabelValues(rule).Inc()
	m.connectionsTotal.WithLabelValues(rule).Inc()
}

// ConnectionClosed records a connection's end and total lifetime.
func (m *Registry) ConnectionClosed(rule string, duration time.Duration) {
	m.activeConnections.WithLabelValues(rule).Dec()
	m.connectionDurationSecs.WithLabelValues(rule).Observe(duration.Seconds())
}

// BytesTransferred adds n bytes to the counter for (rule, direction), where
// direction is one of client_in, client_out, backend_in, backend_out.
func (m *Registry) BytesTransferred(rule, direction string, n int64) {
	if n <= 0 {
		return
	}
	m.trafficBytesTotal.WithLabelValues(rule, direction).Add(float64(n))
}

// BackendActive sets the current connection count for one backend.
func (m *Registry) BackendActive(rule, addr string, n uint64) {
	m.backendActiveConns.WithLabelValues(rule, addr).Set(float64(n))
}

// BackendHealth sets the health gauge for one backend (1 = healthy).
func (m *Registry) BackendHealth(rule, addr string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.backendHealth.WithLabelValues(rule, addr).Set(v)
}

// DropRule removes every series for a rule that was deleted on reload, so
// a stale rule doesn't linger forever in a scrape.
func (m *Registry) DropRule(rule string) {
	m.activeConnections.DeletePartialMatch(prometheus.Labels{"rule": rule})
	m.backendActiveConns.DeletePartialMatch(prometheus.Labels{"rule": rule})
	m.backendHealth.DeletePartialMatch(prometheus.Labels{"rule": rule})
	m.connectionsTotal.DeletePartialMatch(prometheus.Labels{"rule": rule})
	m.trafficBytesTotal.DeletePartialMatch(prometheus.Labels{"rule": rule})
	m.connectionDurationSecs.DeletePartialMatch(prometheus.Labels{"rule": rule})
}
