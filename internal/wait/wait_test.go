package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil_ImmediateSuccess(t *testing.T) {
	calls := 0
	err := Until(context.Background(), time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUntil_EventuallyTrue(t *testing.T) {
	calls := 0
	err := Until(context.Background(), time.Second, 5*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntil_Timeout(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), 50*time.Millisecond, 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntil_ZeroBudgetEvaluatesOnce(t *testing.T) {
	calls := 0
	err := Until(context.Background(), 0, 10*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, calls)
}

func TestUntil_ConditionErrorStops(t *testing.T) {
	boom := errors.New("page gone")
	calls := 0
	err := Until(context.Background(), time.Second, 5*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntil_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Until(ctx, time.Minute, 5*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValue(t *testing.T) {
	n := 0
	v, err := Value(context.Background(), time.Second, time.Millisecond, func(context.Context) (string, bool, error) {
		n++
		if n < 2 {
			return "", false, nil
		}
		return "ready", true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestSettle(t *testing.T) {
	start := time.Now()
	require.NoError(t, Settle(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Settle(ctx, time.Hour), context.Canceled)
}
