// Package retry wraps a fallible operation with a fixed geometric delay
// schedule. The schedule is deliberately unjittered: recsync is a low-QPS
// personal tool, not a high-throughput service, and a predictable
// 0s/1s/2s/4s ladder is easier to reason about than randomized backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the total attempt ceiling, including the first try.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. There is no
	// delay before the first attempt.
	InitialDelay time.Duration
	// Multiplier grows the delay geometrically between attempts.
	Multiplier float64
}

// DefaultConfig returns the standard 4-attempt 0s/1s/2s/4s schedule.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
	}
}

// ErrorClassifier determines if an error is retryable. Non-retryable
// errors propagate immediately on first occurrence.
type ErrorClassifier func(error) bool

// AttemptsError is the terminal error after the attempt ceiling is
// exhausted, annotated with the attempt count for logging.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error { return e.Err }

// Do executes fn, retrying up to cfg.MaxAttempts times while the
// classifier reports the error as retryable. The first attempt runs
// immediately; each subsequent attempt waits InitialDelay*Multiplier^n.
// Context cancellation during a delay aborts with an AttemptsError
// joining ctx.Err() and the last operation error.
func Do(ctx context.Context, cfg Config, retryable ErrorClassifier, fn func(context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			if retryable == nil || !retryable(err) {
				return err
			}
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// Keep the last operation error alongside the cancellation
			// so logs show what was being retried when the run stopped.
			return &AttemptsError{Attempts: attempt, Err: errors.Join(ctx.Err(), lastErr)}
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}

	return &AttemptsError{Attempts: cfg.MaxAttempts, Err: lastErr}
}
