package adminsrv

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nabbar/l4lb/internal/logging"
)

func TestHealthzNotReadyThenReady(t *testing.T) {
	reg := prometheus.NewRegistry()
	log := logging.New(io.Discard, logging.ErrorLevel)

	s := New("127.0.0.1:0", reg, log)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(context.Background()) //nolint:errcheck

	addr := s.ln.Addr().String()

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status before ready = %d, want 503", resp.StatusCode)
	}

	s.MarkReady()

	resp, err = http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after ready = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpointServesRegisteredSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total"})
	counter.Inc()
	reg.MustRegister(counter)

	log := logging.New(io.Discard, logging.ErrorLevel)
	s := New("127.0.0.1:0", reg, log)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(context.Background()) //nolint:errcheck

	addr := s.ln.Addr().String()
	time.Sleep(10 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !contains(body, "test_counter_total 1") {
		t.Fatalf("metrics output missing counter, got: %s", body)
	}
}

func contains(haystack []byte, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack []byte, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return i
		}
	}
	return -1
}
