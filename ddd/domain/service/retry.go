package service

import (
	"context"
	"time"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/pkg/logger"
)

// RetryPolicy retries transient external-call failures with exponential backoff.
// Content failures are returned immediately.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy 默认重试 3 次，初始间隔 1s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: time.Second}
}

// Do runs fn until it succeeds, fails with a non-transient error, or attempts run out.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Backoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !fault.IsTransient(err) || attempt == attempts {
			return err
		}
		logger.Warnf("transient failure, retrying op=%s attempt=%d/%d delay=%s error=%v", op, attempt, attempts, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
