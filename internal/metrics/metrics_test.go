package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g *prometheus.GaugeVec, labels prometheus.Labels) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.With(labels).Write(m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.With(labels).Write(m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestConnectionOpenedAndClosed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectionOpened("r1")
	if got := gaugeValue(t, m.activeConnections, prometheus.Labels{"rule": "r1"}); got != 1 {
		t.Fatalf("active connections = %v, want 1", got)
	}
	if got := counterValue(t, m.connectionsTotal, prometheus.Labels{"rule": "r1"}); got != 1 {
		t.Fatalf("connections total = %v, want 1", got)
	}

	m.ConnectionClosed("r1", 10*time.Millisecond)
	if got := gaugeValue(t, m.activeConnections, prometheus.Labels{"rule": "r1"}); got != 0 {
		t.Fatalf("active connections after close = %v, want 0", got)
	}
}

func TestBytesTransferred(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BytesTransferred("r1", "client_in", 100)
	m.BytesTransferred("r1", "client_in", 50)
	m.BytesTransferred("r1", "client_in", 0) // no-op

	if got := counterValue(t, m.trafficBytesTotal, prometheus.Labels{"rule": "r1", "direction": "client_in"}); got != 150 {
		t.Fatalf("bytes transferred = %v, want 150", got)
	}
}

func TestBackendHealthAndActive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BackendHealth("r1", "10.0.0.1:80", true)
	if got := gaugeValue(t, m.backendHealth, prometheus.Labels{"rule": "r1", "addr": "10.0.0.1:80"}); got != 1 {
		t.Fatalf("backend health = %v, want 1", got)
	}

	m.BackendHealth("r1", "10.0.0.1:80", false)
	if got := gaugeValue(t, m.backendHealth, prometheus.Labels{"rule": "r1", "addr": "10.0.0.1:80"}); got != 0 {
		t.Fatalf("backend health after flip = %v, want 0", got)
	}

	m.BackendActive("r1", "10.0.0.1:80", 3)
	if got := gaugeValue(t, m.backendActiveConns, prometheus.Labels{"rule": "r1", "addr": "10.0.0.1:80"}); got != 3 {
		t.Fatalf("backend active = %v, want 3", got)
	}
}
