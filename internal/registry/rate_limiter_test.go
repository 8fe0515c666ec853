package registry

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterSpacesCalls(t *testing.T) {
	limiter := NewRateLimiter(50)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.WaitTurn(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// First turn is free; the next two each wait one 20ms interval.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("three turns in %v", elapsed)
	}
}

func TestRateLimiterCanceledContextEndsWait(t *testing.T) {
	limiter := NewRateLimiter(1)
	if err := limiter.WaitTurn(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := limiter.WaitTurn(ctx); err == nil {
		t.Fatal("want context error")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("wait ignored cancellation: %v", elapsed)
	}
}

func TestRateLimiterClampsRate(t *testing.T) {
	limiter := NewRateLimiter(0)
	if limiter.interval != time.Second {
		t.Fatalf("interval=%v", limiter.interval)
	}
}
