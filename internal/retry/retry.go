// Package retry runs an operation repeatedly until it succeeds, fails with a
// non-retryable error, or runs out of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TransientError marks a failure that is expected to go away on its own,
// such as a storage or database connectivity problem.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err, or anything it wraps, is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Policy controls how Do repeats an operation.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// Backoff returns the delay before the given attempt (2, 3, ...).
	Backoff func(attempt int) time.Duration
	// Retryable decides whether a failure is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(err error) bool
	// Logger receives a warning for every retry. Optional.
	Logger *zerolog.Logger
}

// Linear returns a backoff that waits (attempt-1)*base before each retry,
// so the second attempt waits base, the third 2*base and so on.
func Linear(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt <= 1 {
			return 0
		}
		return time.Duration(attempt-1) * base
	}
}

// Do calls fn until it returns nil, returns a non-retryable error, or
// MaxAttempts calls have been made. It returns the last error. Waiting
// between attempts stops early if ctx is cancelled.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: MaxAttempts must be at least 1, got %d", p.MaxAttempts)
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 && p.Backoff != nil {
			delay := p.Backoff(attempt)
			if p.Logger != nil {
				p.Logger.Warn().
					Err(err).
					Int("attempt", attempt).
					Int("max_attempts", p.MaxAttempts).
					Dur("backoff", delay).
					Msg("Retrying after transient failure")
			}
			if waitErr := sleep(ctx, delay); waitErr != nil {
				return err
			}
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
