package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/repo_sync/gitops/retry"
)

var errTransient = errors.New("transient")

// recordSleep returns a SleepFunc that records each
// requested delay without waiting.
func recordSleep(got *[]time.Duration) retry.SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*got = append(*got, d)

		return nil
	}
}

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func TestPolicy_Do_succeeds_after_retries(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration

	pol := retry.Policy{
		MaxAttempts: 10,
		Delay:       time.Second,
		Retryable:   isTransient,
		Sleep:       recordSleep(&sleeps),
	}

	calls := 0

	err := pol.Do(
		context.Background(),
		func(_ context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errTransient
			}

			return nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(
		t,
		[]time.Duration{time.Second, time.Second},
		sleeps,
	)
}

func TestPolicy_Do_delay_first(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration

	pol := retry.Policy{
		MaxAttempts: 5,
		Delay:       5 * time.Second,
		DelayFirst:  true,
		Retryable:   isTransient,
		Sleep:       recordSleep(&sleeps),
	}

	err := pol.Do(
		context.Background(),
		func(context.Context, int) error { return nil },
	)

	require.NoError(t, err)
	assert.Equal(
		t, []time.Duration{5 * time.Second}, sleeps,
	)
}

func TestPolicy_Do_non_retryable_stops(t *testing.T) {
	t.Parallel()

	errFatal := errors.New("fatal")
	calls := 0

	pol := retry.Policy{
		MaxAttempts: 10,
		Retryable:   isTransient,
		Sleep:       recordSleep(new([]time.Duration)),
	}

	err := pol.Do(
		context.Background(),
		func(context.Context, int) error {
			calls++

			return errFatal
		},
	)

	require.ErrorIs(t, err, errFatal)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_exhausted(t *testing.T) {
	t.Parallel()

	calls := 0

	pol := retry.Policy{
		MaxAttempts: 5,
		Retryable:   isTransient,
		Sleep:       recordSleep(new([]time.Duration)),
	}

	err := pol.Do(
		context.Background(),
		func(context.Context, int) error {
			calls++

			return errTransient
		},
	)

	require.ErrorIs(t, err, retry.ErrExhausted)
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 5, calls)
}

func TestPolicy_Do_zero_attempts_runs_once(t *testing.T) {
	t.Parallel()

	calls := 0

	err := retry.Policy{}.Do(
		context.Background(),
		func(context.Context, int) error {
			calls++

			return nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_context_cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(
		context.Background(),
	)
	cancel()

	calls := 0

	pol := retry.Policy{
		MaxAttempts: 3,
		Delay:       time.Hour,
		Retryable:   isTransient,
	}

	err := pol.Do(
		ctx,
		func(context.Context, int) error {
			calls++

			return errTransient
		},
	)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
