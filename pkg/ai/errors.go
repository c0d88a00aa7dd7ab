// Package ai provides common types and utilities for AI provider implementations.
// It defines the error classification and retry configuration shared by the
// translation, synthesis and transcription providers.
package ai

import (
	"context"
	"errors"
	"time"
)

// Common error types used across AI providers
var (
	// ErrRecoverable indicates a temporary failure that may succeed if retried.
	// Examples: network timeout, rate limiting, temporary service unavailability.
	ErrRecoverable = errors.New("recoverable AI provider error")

	// ErrFatal indicates a permanent failure that will not succeed if retried.
	// Examples: invalid API key, unsupported model, malformed request.
	ErrFatal = errors.New("fatal AI provider error")

	// ErrCancelled indicates the owner cancelled the operation, typically
	// because the room disconnected or the process is shutting down.
	// It is never retried.
	ErrCancelled = errors.New("operation cancelled")
)

// RetryConfig configures retry behavior for recoverable errors.
// The n-th retry waits BaseDelay*n.
type RetryConfig struct {
	MaxRetries int           // Retries after the first attempt
	BaseDelay  time.Duration // Delay unit, multiplied by the retry number
	MaxDelay   time.Duration // Upper bound for a single delay (0 = none)
}

// DefaultRetryConfig allows three attempts, 0.5s and 1s apart.
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 2,
	BaseDelay:  500 * time.Millisecond,
}

// MaxAttempts returns the total number of attempts, including the first one.
func (c RetryConfig) MaxAttempts() int {
	if c.MaxRetries < 0 {
		return 1
	}
	return c.MaxRetries + 1
}

// IsRecoverable checks if an error is recoverable and should be retried
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal checks if an error is fatal and should not be retried
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsCancelled reports whether err stems from the owner cancelling the work.
// A passed deadline is a timeout, not a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// ContextCancelled reports whether ctx was cancelled by its owner rather than
// ended by its deadline.
func ContextCancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// RetryableError wraps an underlying error with retry classification
type RetryableError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *RetryableError) Error() string {
	if e.Message != "" {
		if e.Underlying != nil {
			return e.Message + ": " + e.Underlying.Error()
		}
		return e.Message
	}
	if e.Underlying == nil {
		return "unknown AI provider error"
	}
	return e.Underlying.Error()
}

// Unwrap exposes both the classification sentinel and the underlying error.
func (e *RetryableError) Unwrap() []error {
	class := ErrFatal
	if e.Retryable {
		class = ErrRecoverable
	}
	if e.Underlying == nil {
		return []error{class}
	}
	return []error{class, e.Underlying}
}

// NewRecoverableError creates a recoverable error with context
func NewRecoverableError(underlying error, message string) error {
	return &RetryableError{
		Underlying: underlying,
		Retryable:  true,
		Message:    message,
	}
}

// NewFatalError creates a fatal error with context
func NewFatalError(underlying error, message string) error {
	return &RetryableError{
		Underlying: underlying,
		Retryable:  false,
		Message:    message,
	}
}
