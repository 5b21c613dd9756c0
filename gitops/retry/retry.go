package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the last error once a policy has
// used all of its attempts on retryable failures.
var ErrExhausted = errors.New("retries exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how many times an operation is
// attempted and how long to wait around attempts.
type Policy struct {
	// MaxAttempts is the total number of attempts.
	// Values below one are treated as one.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// DelayFirst also waits before the first attempt.
	DelayFirst bool
	// Retryable decides whether an error deserves
	// another attempt. Nil means nothing is retried.
	Retryable func(err error) bool
	// Sleep overrides the wait, mainly for tests.
	Sleep SleepFunc
}

// Do calls fn until it succeeds, returns a
// non-retryable error, or the attempts run out. The
// attempt number passed to fn starts at 1.
func (p Policy) Do(
	ctx context.Context,
	fn func(ctx context.Context, attempt int) error,
) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 || p.DelayFirst {
			if err := sleep(ctx, p.Delay); err != nil {
				if lastErr != nil {
					return errors.Join(lastErr, err)
				}

				return err
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf(
		"%w after %d attempts: %w",
		ErrExhausted, attempts, lastErr,
	)
}

// Sleep waits for d using a fresh timer. It returns
// ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
