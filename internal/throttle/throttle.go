// Package throttle provides the outbound request gate shared by every worker talking to one service.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces requests with a token bucket and honors server-sent retry-after pauses.
// All callers of one service share a single Throttle.
type Throttle struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
	now         func() time.Time
}

// New allows requests per duration, bursting up to requests.
func New(requests int, per time.Duration) *Throttle {
	if requests < 1 {
		requests = 1
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Every(per/time.Duration(requests)), requests),
		now:     time.Now,
	}
}

// Unlimited never blocks except for pauses. Used by tests and fakes.
func Unlimited() *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1), now: time.Now}
}

// Wait blocks until the caller may send one request or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		wait := t.pausedUntil.Sub(t.now())
		t.mu.Unlock()
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return t.limiter.Wait(ctx)
}

// Pause holds every caller for at least d. Overlapping pauses keep the later deadline.
func (t *Throttle) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	until := t.now().Add(d)
	if until.After(t.pausedUntil) {
		t.pausedUntil = until
	}
}

// PausedFor reports the remaining pause.
func (t *Throttle) PausedFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d := t.pausedUntil.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}
