// Package retry runs an operation with a bounded number of attempts and a
// fixed backoff schedule.
package retry

import (
	"context"
	"fmt"
	"time"
)

// DefaultAttempts is the attempt ceiling used when a Policy leaves it unset.
const DefaultAttempts = 3

// DefaultDelays is the backoff schedule between failed attempts. Attempts
// beyond the schedule reuse the last value.
var DefaultDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures Do.
type Policy struct {
	Attempts int
	Delays   []time.Duration
	Sleep    SleepFunc

	// Classify rewrites an attempt error before it is inspected, e.g. to
	// tag it with a domain error kind.
	Classify func(error) error
	// Retryable returns false for errors that must end the loop at once.
	// Such errors are returned unchanged rather than as *ExhaustedError.
	Retryable func(error) bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Delay returns the backoff before the attempt following attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	delays := p.Delays
	if delays == nil {
		delays = DefaultDelays
	}
	if len(delays) == 0 {
		return 0
	}
	if attempt >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt]
}

func (p Policy) attempts() int {
	if p.Attempts <= 0 {
		return DefaultAttempts
	}
	return p.Attempts
}

// Do calls fn until it succeeds, a non-retryable error occurs, ctx ends or
// the attempt ceiling is reached. It never sleeps after the final attempt.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = Pause
	}
	attempts := p.attempts()

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		value, err := fn(ctx, attempt)
		if err == nil {
			return value, nil
		}
		if p.Classify != nil {
			err = p.Classify(err)
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		last = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("retry aborted after attempt %d: %w", attempt+1, ctxErr)
		}
		if attempt == attempts-1 {
			break
		}
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry backoff: %w", err)
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Last: last}
}

// Pause sleeps for delay unless ctx finishes first.
func Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
