// Package fetch - throttle.go enforces a minimum delay between outbound calls.
package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces outbound calls to one target at least MinDelay apart.
// It is safe for concurrent use; concurrent callers queue behind each other.
type Throttle struct {
	limiter  *rate.Limiter
	minDelay time.Duration
}

// NewThrottle creates a Throttle. A non-positive delay disables throttling.
func NewThrottle(minDelay time.Duration) *Throttle {
	if minDelay <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{
		limiter:  rate.NewLimiter(rate.Every(minDelay), 1),
		minDelay: minDelay,
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// MinDelay returns the configured spacing.
func (t *Throttle) MinDelay() time.Duration {
	if t == nil {
		return 0
	}
	return t.minDelay
}
