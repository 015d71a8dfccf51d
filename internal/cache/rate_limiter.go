package cache

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces requests to a remote results host. Reservations are
// taken under the lock; the wait happens outside it.
type RateLimiter struct {
	mu   sync.Mutex
	next time.Time
	gap  time.Duration
}

func NewRateLimiter(perSecond int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &RateLimiter{gap: time.Second / time.Duration(perSecond)}
}

func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	slot := now
	if r.next.After(now) {
		slot = r.next
	}
	r.next = slot.Add(r.gap)
	return slot.Sub(now)
}

// Wait blocks until the caller's slot or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return sleepCtx(ctx, r.reserve())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
