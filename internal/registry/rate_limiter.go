package registry

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces Sheets calls out evenly. The per-user quota is low
// enough that the clear/update/append burst of a single push can trip it,
// so every call reserves the next free slot before going out.
type RateLimiter struct {
	mu       sync.Mutex
	nextSlot time.Time
	interval time.Duration
}

// NewRateLimiter builds a limiter for the configured requests per second.
// Zero or negative falls back to one request per second.
func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{interval: time.Second / time.Duration(requestsPerSecond)}
}

// WaitTurn reserves the next slot and sleeps until it opens. The wait ends
// early with the context error when the caller's deadline or cancellation
// fires; the reserved slot is not returned.
func (r *RateLimiter) WaitTurn(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	slot := now
	if r.nextSlot.After(now) {
		slot = r.nextSlot
	}
	r.nextSlot = slot.Add(r.interval)
	r.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
