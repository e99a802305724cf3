package query

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy controls how failed fetches are retried. Mutations are never
// retried.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
	// Retryable reports whether err is worth another attempt; nil retries
	// everything except context cancellation.
	Retryable func(err error) bool
}

// DefaultRetryPolicy retries three times, waiting min(1s*2^attempt, 30s)
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	Base:       time.Second,
	Max:        30 * time.Second,
}

// Delay returns the wait before retry number attempt (0-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return min(d, p.Max)
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// do calls fn until it succeeds, the policy gives up or ctx ends
func (p RetryPolicy) do(ctx context.Context, fn Fetcher, onRetry func(attempt int, delay time.Duration, err error)) (any, error) {
	for attempt := 0; ; attempt++ {
		data, err := fn(ctx)
		if err == nil {
			return data, nil
		}
		if attempt >= p.MaxRetries || ctx.Err() != nil || !p.retryable(err) {
			return nil, err
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
