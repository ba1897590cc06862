package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nabbar/l4lb/internal/ratelimit"
)

func TestTryAcquireWithinBurst(t *testing.T) {
	b := ratelimit.NewTokenBucket(10, 5)
	for i := 0; i < 5; i++ {
		if !b.TryAcquire(1) {
			t.Fatalf("acquire %d: expected success within burst", i)
		}
	}
	if b.TryAcquire(1) {
		t.Fatal("expected failure once burst is exhausted")
	}
}

func TestAvailableStaysWithinBounds(t *testing.T) {
	b := ratelimit.NewTokenBucket(1000, 10)
	if b.Available() > 10 {
		t.Fatalf("available exceeds burst: %f", b.Available())
	}
	b.TryAcquire(10)
	if a := b.Available(); a < 0 {
		t.Fatalf("available went negative: %f", a)
	}
}

func TestWaitForBlocksUntilRefilled(t *testing.T) {
	b := ratelimit.NewTokenBucket(100, 1) // 1 token burst, 100/s refill
	if !b.TryAcquire(1) {
		t.Fatal("expected initial acquire to succeed")
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := b.WaitFor(ctx, 1); err != nil {
		t.Fatalf("unexpected error waiting for tokens: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Fatalf("expected WaitFor to actually wait for refill, elapsed %v", elapsed)
	}
}

func TestWaitForRespectsContextCancellation(t *testing.T) {
	b := ratelimit.NewTokenBucket(1, 1) // slow refill
	b.TryAcquire(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := b.WaitFor(ctx, 1); err == nil {
		t.Fatal("expected context deadline to abort the wait")
	}
}

func TestRateLimiterDisabledAlwaysAllows(t *testing.T) {
	r := ratelimit.NewRateLimiter(false, 1, 1)
	for i := 0; i < 10; i++ {
		if !r.Allow("10.0.0.1") {
			t.Fatal("disabled limiter must always allow")
		}
	}
}

func TestRateLimiterAdmitsExactlyBurstConcurrently(t *testing.T) {
	const burst = 5
	const attempts = 20
	r := ratelimit.NewRateLimiter(true, 0.0001, burst) // refill negligible for the test window

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Allow("1.2.3.4") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != burst {
		t.Fatalf("expected exactly %d admitted, got %d", burst, admitted)
	}
}

func TestRateLimiterTracksPerIPIndependently(t *testing.T) {
	r := ratelimit.NewRateLimiter(true, 0.0001, 1)
	if !r.Allow("1.1.1.1") {
		t.Fatal("expected first request from 1.1.1.1 to be admitted")
	}
	if !r.Allow("2.2.2.2") {
		t.Fatal("expected first request from a distinct IP to be admitted independently")
	}
	if r.Allow("1.1.1.1") {
		t.Fatal("expected second request from 1.1.1.1 to be denied")
	}
}
