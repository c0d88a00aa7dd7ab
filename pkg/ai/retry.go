package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// LinearBackOff is a backoff.BackOff that waits Base*n before the n-th retry.
type LinearBackOff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

// NextBackOff returns the delay before the next retry.
func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	delay := b.Base * time.Duration(b.attempt)
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Reset restarts the progression from the first retry.
func (b *LinearBackOff) Reset() {
	b.attempt = 0
}

// Operation is one attempt of a retried call. attempt is 1-based.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Retry runs op until it succeeds, returns a fatal error, the context is
// cancelled, or cfg.MaxAttempts() attempts have failed.
//
// The error returned after the last attempt is the one op produced, not a
// wrapper. Cancellation is never retried and is reported as ErrCancelled. A
// deadline on ctx is a timeout: it stops the retries and the last provider
// error is returned wrapped with context.DeadlineExceeded.
func Retry[T any](ctx context.Context, cfg RetryConfig, logger *slog.Logger, name string, op Operation[T]) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	var last error
	settled := false
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					slog.String("operation", name),
					slog.Int("attempts", attempt))
			}
			return v, nil
		}

		switch {
		case ContextCancelled(ctx) || IsCancelled(err):
			settled = true
			return v, backoff.Permanent(cancelled(ctx, err))
		case ctx.Err() != nil:
			settled = true
			return v, backoff.Permanent(expired(attempt, lastFailure(err, last)))
		case IsFatal(err):
			logger.Error("Fatal error, not retrying",
				slog.String("operation", name),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return v, backoff.Permanent(err)
		}
		last = err
		return v, err
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&LinearBackOff{Base: cfg.BaseDelay, Max: cfg.MaxDelay}),
		backoff.WithMaxTries(uint(cfg.MaxAttempts())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.Warn("Recoverable error, retrying",
				slog.String("operation", name),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", cfg.MaxAttempts()),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()))
		}))
	if err == nil {
		return v, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if settled {
		return v, err
	}

	// ctx ended while waiting for the next attempt.
	switch {
	case ContextCancelled(ctx):
		err = cancelled(ctx, err)
	case ctx.Err() != nil:
		err = expired(attempt, lastFailure(err, last))
	}
	return v, err
}

func cancelled(ctx context.Context, err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// lastFailure prefers an earlier provider error over the bare deadline error
// the final attempt was cut short with.
func lastFailure(err, last error) error {
	if last != nil && errors.Is(err, context.DeadlineExceeded) {
		return last
	}
	return err
}

func expired(attempts int, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %d attempt(s): %w", attempts, err)
	}
	return fmt.Errorf("%w after %d attempt(s): %w", context.DeadlineExceeded, attempts, err)
}
