package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noBackoff(int) time.Duration { return 0 }

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Backoff: noBackoff}, func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if calls < 3 {
			return Transient(errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttemptsWithLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Backoff: noBackoff}, func(ctx context.Context, attempt int) error {
		calls++
		return Transient(errors.New("attempt failed"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsTransient(err))
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("bad file")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Backoff: noBackoff}, func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{
		MaxAttempts: 2,
		Backoff:     noBackoff,
		Retryable:   func(err error) bool { return errors.Is(err, context.DeadlineExceeded) },
	}, func(ctx context.Context, attempt int) error {
		calls++
		return context.DeadlineExceeded
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3, Backoff: Linear(time.Hour)}, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return Transient(errors.New("storage unavailable"))
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage unavailable")
	assert.Equal(t, 1, calls)
}

func TestDo_RejectsZeroAttempts(t *testing.T) {
	err := Do(context.Background(), Policy{}, func(ctx context.Context, attempt int) error { return nil })
	assert.Error(t, err)
}

func TestLinear(t *testing.T) {
	b := Linear(60 * time.Second)
	assert.Equal(t, time.Duration(0), b(1))
	assert.Equal(t, 60*time.Second, b(2))
	assert.Equal(t, 120*time.Second, b(3))
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient(nil))

	base := errors.New("timeout")
	wrapped := Transient(base)
	assert.ErrorIs(t, wrapped, base)
	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsTransient(base))
}
