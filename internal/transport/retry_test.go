package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRateLimited = errors.New("rate limited")

func isRateLimited(err error) bool { return errors.Is(err, errRateLimited) }

func TestRetryPolicy_RetryableRetriedOnce(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond, Retryable: isRateLimited}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errRateLimited
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_NonRetryablePropagatesImmediately(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond, Retryable: isRateLimited}

	boom := errors.New("connection reset")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ExhaustedReturnsLastError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond, Retryable: isRateLimited}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errRateLimited
	})

	require.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_ContextCancelledDuringDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, Delay: time.Second, Retryable: isRateLimited}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(ctx context.Context) error {
		return errRateLimited
	})
	require.ErrorIs(t, err, context.Canceled)
}
