// Package transport holds the retry policy applied to outbound venue calls.
// The policy is an explicit value passed into each venue client so the retry
// behavior can be tested independently of any call site.
package transport

import (
	"context"
	"time"
)

// RetryPolicy controls how a venue client retries a transport failure. Only
// failures matched by Retryable are retried, and only for calls that cannot
// have mutated venue state. MaxAttempts counts the initial attempt.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// DefaultPolicy retries rate-limit failures once after a fixed delay, which
// is the only transport failure considered safely retryable. Everything else
// propagates unretried.
func DefaultPolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Delay:       500 * time.Millisecond,
		Retryable:   retryable,
	}
}

// Do runs fn under the policy. It returns the first non-retryable error, the
// last error once attempts are exhausted, or nil on success. The wait between
// attempts respects context cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
	}
	return err
}
