package reconcile

import (
	"fmt"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
)

// RetryPolicy bounds the attempts made for one mutation.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Decision is what to do after a failed attempt.
type Decision struct {
	Retry  bool
	Delay  time.Duration
	Reason string // failure reason when Retry is false
}

// Decide is called after attempt (1-based) failed with err. Transient and rate-limited
// failures back off exponentially, never below the server's retry-after hint.
func (p RetryPolicy) Decide(attempt int, err error) Decision {
	if err == nil {
		return Decision{}
	}
	kind := apperr.KindOf(err)
	if kind == apperr.Permanent {
		return Decision{Reason: err.Error()}
	}

	maxAttempts := max(p.MaxAttempts, 1)
	if attempt >= maxAttempts {
		if kind == apperr.RateLimited {
			return Decision{Reason: fmt.Sprintf("rate-limit exhausted after %d attempts: %v", attempt, err)}
		}
		return Decision{Reason: fmt.Sprintf("retries exhausted after %d attempts: %v", attempt, err)}
	}

	delay := p.backoff(attempt)
	if hint := apperr.RetryAfter(err); hint > delay {
		delay = hint
	}
	return Decision{Retry: true, Delay: delay}
}

// backoff is BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
