// Package wait provides the bounded polling used at every wait point of the
// contact lookup: challenge prompt polling, solver result polling and settle delays.
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultInterval is used when a non-positive poll interval is given.
const DefaultInterval = 250 * time.Millisecond

// ErrTimeout is returned when the condition did not hold within the wait budget.
var ErrTimeout = errors.New("wait: condition not met in time")

var errNotYet = errors.New("not yet")

// Condition reports whether the awaited state has been reached.
// A non-nil error stops polling immediately.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond every interval until it holds, it fails, ctx is done or
// maxWait has elapsed. cond is always evaluated at least once.
func Until(ctx context.Context, maxWait, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxWait < 0 {
		maxWait = 0
	}

	backoff := retry.WithMaxDuration(maxWait, retry.NewConstant(interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errNotYet)
		}
		return nil
	})
	if errors.Is(err, errNotYet) {
		return ErrTimeout
	}
	return err
}

// Value polls fn until it returns done, then returns its value.
func Value[T any](ctx context.Context, maxWait, interval time.Duration, fn func(ctx context.Context) (T, bool, error)) (T, error) {
	var out T
	err := Until(ctx, maxWait, interval, func(ctx context.Context) (bool, error) {
		v, done, err := fn(ctx)
		if err != nil || !done {
			return false, err
		}
		out = v
		return true, nil
	})
	return out, err
}

// Settle sleeps for d unless ctx is done first.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
