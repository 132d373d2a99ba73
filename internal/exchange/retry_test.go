package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/nexus/internal/xerrors"
)

func TestWithRetry_SucceedsBeforeMaxRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, ConsecutiveErrorCap: 5}
	tracker := NewHealthTracker(cfg)

	attempts := 0
	err := WithRetry(context.Background(), cfg, tracker, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return xerrors.New(xerrors.KindTransientNetwork, "flaky", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, tracker.IsHealthy())
}

func TestWithRetry_ExhaustsRetriesOnPersistentError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, ConsecutiveErrorCap: 5}
	tracker := NewHealthTracker(cfg)

	attempts := 0
	err := WithRetry(context.Background(), cfg, tracker, func(ctx context.Context) error {
		attempts++
		return xerrors.New(xerrors.KindTransientNetwork, "down", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestWithRetry_DoesNotRetryNonRetryableKind(t *testing.T) {
	cfg := DefaultRetryConfig()
	tracker := NewHealthTracker(cfg)

	attempts := 0
	err := WithRetry(context.Background(), cfg, tracker, func(ctx context.Context) error {
		attempts++
		return xerrors.New(xerrors.KindInsufficientBalance, "no funds", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestHealthTracker_ConsecutiveErrorCapMarksUnhealthy(t *testing.T) {
	cfg := RetryConfig{ConsecutiveErrorCap: 3}
	tracker := NewHealthTracker(cfg)

	for i := 0; i < 2; i++ {
		tracker.RecordError(errors.New("boom"))
	}
	assert.True(t, tracker.IsHealthy())

	tracker.RecordError(errors.New("boom"))
	assert.False(t, tracker.IsHealthy())

	tracker.RecordSuccess()
	assert.True(t, tracker.IsHealthy())
}

func TestSemaphore_BoundsConcurrency(t *testing.T) {
	sem := NewSemaphore(2)
	ctx := context.Background()

	require.NoError(t, sem.Acquire(ctx))
	require.NoError(t, sem.Acquire(ctx))

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := sem.Acquire(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	sem.Release()
	require.NoError(t, sem.Acquire(ctx))
}

func TestBackoffDelay_DoublesAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 1 * time.Second

	assert.Equal(t, base, backoffDelay(0, base, max))
	assert.Equal(t, 2*base, backoffDelay(1, base, max))
	assert.Equal(t, 4*base, backoffDelay(2, base, max))
	assert.Equal(t, max, backoffDelay(10, base, max))
}
