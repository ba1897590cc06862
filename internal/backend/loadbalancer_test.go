package backend_test

import (
	"sync"
	"testing"

	"github.com/nabbar/l4lb/internal/backend"
)

func addrsOf(cfgs ...string) []backend.BackendConfig {
	out := make([]backend.BackendConfig, 0, len(cfgs))
	for _, a := range cfgs {
		out = append(out, backend.BackendConfig{Addr: a})
	}
	return out
}

func TestRoundRobinOrder(t *testing.T) {
	lb := backend.NewLoadBalancer("r1", 0)
	lb.UpdateBackends(addrsOf("A:1", "B:2", "C:3"))

	want := []string{"A:1", "B:2", "C:3", "A:1", "B:2", "C:3", "A:1", "B:2", "C:3"}
	for i, w := range want {
		b, g := lb.NextBackend()
		if b == nil {
			t.Fatalf("call %d: expected a backend, got none", i)
		}
		if b.Addr != w {
			t.Fatalf("call %d: expected %s, got %s", i, w, b.Addr)
		}
		g.Release()
		if b.Active() != 0 {
			t.Fatalf("call %d: expected active 0 after release, got %d", i, b.Active())
		}
	}
}

func TestSkipUnhealthy(t *testing.T) {
	lb := backend.NewLoadBalancer("r1", 0)
	lb.UpdateBackends(addrsOf("A:1", "B:2", "C:3"))
	lb.Lookup("B:2").SetHealthy(false)

	want := []string{"A:1", "C:3", "A:1", "C:3", "A:1", "C:3"}
	for i, w := range want {
		b, g := lb.NextBackend()
		if b == nil || b.Addr != w {
			t.Fatalf("call %d: expected %s, got %v", i, w, b)
		}
		g.Release()
	}
}

func TestCapEnforced(t *testing.T) {
	lb := backend.NewLoadBalancer("r1", 1)
	lb.UpdateBackends(addrsOf("A:1", "B:2"))

	b1, g1 := lb.NextBackend()
	b2, g2 := lb.NextBackend()
	if b1 == nil || b2 == nil {
		t.Fatal("expected two distinct backends to be selected")
	}
	if b1.Addr == b2.Addr {
		t.Fatalf("expected distinct backends, got %s twice", b1.Addr)
	}

	if b3, g3 := lb.NextBackend(); b3 != nil {
		g3.Release()
		t.Fatalf("expected none available at cap, got %s", b3.Addr)
	}

	g1.Release()

	b4, g4 := lb.NextBackend()
	if b4 == nil {
		t.Fatal("expected a backend to become available after a guard was released")
	}
	if b4.Addr != b1.Addr {
		t.Fatalf("expected the freed backend %s to be reselected, got %s", b1.Addr, b4.Addr)
	}
	g4.Release()
	g2.Release()
}

func TestAllFilteredReturnsNone(t *testing.T) {
	lb := backend.NewLoadBalancer("r1", 0)
	lb.UpdateBackends(addrsOf("A:1", "B:2"))
	lb.Lookup("A:1").SetDrain(true)
	lb.Lookup("B:2").SetHealthy(false)

	if b, _ := lb.NextBackend(); b != nil {
		t.Fatalf("expected none available, got %s", b.Addr)
	}
}

func TestEmptySnapshotReturnsNone(t *testing.T) {
	lb := backend.NewLoadBalancer("r1", 0)
	if b, g := lb.NextBackend(); b != nil || g != nil {
		t.Fatal("expected none available on an empty backend set")
	}
}

func TestHotReloadPreservesCounters(t *testing.T) {
	lb := backend.NewLoadBalancer("r1", 0)
	lb.UpdateBackends(addrsOf("A:1", "B:2"))

	a := lb.Lookup("A:1")
	b := lb.Lookup("B:2")
	a.Active()

	for i := 0; i < 50; i++ {
		a.SetHealthy(true)
	}
	// Simulate 50 live guards on each via direct increments through selection.
	var guards []*backend.ConnectionGuard
	for i := 0; i < 50; i++ {
		_, g := lb.NextBackend()
		guards = append(guards, g)
	}
	if a.Active()+b.Active() != 50 {
		t.Fatalf("expected 50 total active connections, got %d", a.Active()+b.Active())
	}

	lb.UpdateBackends(addrsOf("B:2", "C:3"))

	newB := lb.Lookup("B:2")
	if newB != b {
		t.Fatal("expected B handle to be reused across reload")
	}
	if newB.Active() != b.Active() {
		t.Fatal("expected B's counter to survive the reload unchanged")
	}

	c := lb.Lookup("C:3")
	if c == nil || c.Active() != 0 {
		t.Fatal("expected C to start fresh with a zero counter")
	}
	if lb.Lookup("A:1") != nil {
		t.Fatal("expected A to be dropped from the snapshot")
	}

	// A's old guards still release harmlessly even though A left the snapshot.
	for _, g := range guards {
		g.Release()
	}
}

func TestConcurrentSelectionNeverExceedsCap(t *testing.T) {
	lb := backend.NewLoadBalancer("r1", 3)
	lb.UpdateBackends(addrsOf("A:1"))

	var wg sync.WaitGroup
	results := make(chan *backend.ConnectionGuard, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, g := lb.NextBackend(); g != nil {
				results <- g
			}
		}()
	}
	wg.Wait()
	close(results)

	a := lb.Lookup("A:1")
	if a.Active() > 3 {
		// Bounded overshoot is expected (the cap check isn't atomic with
		// the increment across concurrent selectors), but with a single
		// backend and 100 contenders the cap must still hold the line
		// closely; a materially larger value signals the eligibility gate
		// is not being consulted at all.
		t.Fatalf("active connections grossly exceeded cap: %d", a.Active())
	}
	for g := range results {
		g.Release()
	}
}

func TestUpdateBackendsOverwritesDrainFlag(t *testing.T) {
	lb := backend.NewLoadBalancer("r1", 0)
	lb.UpdateBackends([]backend.BackendConfig{{Addr: "A:1", Drain: true}})
	if !lb.Lookup("A:1").Draining() {
		t.Fatal("expected A to start draining")
	}

	lb.UpdateBackends([]backend.BackendConfig{{Addr: "A:1", Drain: false}})
	if lb.Lookup("A:1").Draining() {
		t.Fatal("expected drain flag to be cleared by reload")
	}
}
