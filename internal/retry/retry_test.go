package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boredhf/conexus/internal/retry"
)

func TestExecuteWithRetrySucceedsFirstTry(t *testing.T) {
	m := retry.NewManager(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)

	calls := 0
	got, err := retry.ExecuteWithRetry(context.Background(), m, "op", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetryEventuallySucceeds(t *testing.T) {
	m := retry.NewManager(retry.Config{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2}, nil)

	calls := 0
	got, err := retry.ExecuteWithRetry(context.Background(), m, "flaky-op", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient failure")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetryExhaustsAttempts(t *testing.T) {
	m := retry.NewManager(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)

	calls := 0
	_, err := retry.ExecuteWithRetry(context.Background(), m, "always-fails", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetryStopsOnPermanentError(t *testing.T) {
	m := retry.NewManager(retry.Config{MaxAttempts: 5, BaseDelay: time.Millisecond}, nil)

	sentinel := errors.New("not retryable")
	calls := 0
	_, err := retry.ExecuteWithRetry(context.Background(), m, "permanent-fail", func(ctx context.Context) (int, error) {
		calls++
		return 0, retry.Permanent(sentinel)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetryRespectsContextCancellation(t *testing.T) {
	m := retry.NewManager(retry.Config{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := retry.ExecuteWithRetry(ctx, m, "cancel-op", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("keep failing")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 10)
}

func TestManagerShutdownDrainsIdlePool(t *testing.T) {
	m := retry.NewManager(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)

	_, err := retry.ExecuteWithRetry(context.Background(), m, "op", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestExecuteWithRetryRejectedAfterShutdown(t *testing.T) {
	m := retry.NewManager(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := retry.ExecuteWithRetry(context.Background(), m, "op", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.Error(t, err)
}
