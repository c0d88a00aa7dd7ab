package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

var errFlaky = errors.New("connection refused")

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{MaxRetries: maxRetries, BaseDelay: time.Millisecond}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	is := is.New(t)

	calls := 0
	got, err := Retry(context.Background(), fastRetry(3), nil, "test", func(ctx context.Context, attempt int) (string, error) {
		calls++
		is.Equal(attempt, calls) // attempt numbers are 1-based and sequential
		if calls < 3 {
			return "", NewRecoverableError(errFlaky, "open stream")
		}
		return "ok", nil
	})

	is.NoErr(err)
	is.Equal(got, "ok")
	is.Equal(calls, 3)
}

func TestRetry_SurfacesLastErrorAtCeiling(t *testing.T) {
	is := is.New(t)

	calls := 0
	_, err := Retry(context.Background(), fastRetry(2), nil, "test", func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errFlaky
	})

	is.Equal(calls, 3)                // one attempt plus two retries
	is.True(errors.Is(err, errFlaky)) // original error is surfaced
	is.Equal(err, errFlaky)           // and not wrapped
}

func TestRetry_FatalIsNotRetried(t *testing.T) {
	is := is.New(t)

	calls := 0
	_, err := Retry(context.Background(), fastRetry(5), nil, "test", func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, NewFatalError(errFlaky, "bad api key")
	})

	is.Equal(calls, 1)
	is.True(IsFatal(err))
	is.True(errors.Is(err, errFlaky)) // underlying error stays reachable
}

func TestRetry_CancelledIsNotRetried(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, fastRetry(5), nil, "test", func(ctx context.Context, attempt int) (int, error) {
		calls++
		cancel()
		return 0, ctx.Err()
	})

	is.Equal(calls, 1)
	is.True(errors.Is(err, ErrCancelled))
	is.True(errors.Is(err, context.Canceled))
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Hour}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Retry(ctx, cfg, nil, "test", func(ctx context.Context, attempt int) (int, error) {
		return 0, errFlaky
	})

	is.True(errors.Is(err, ErrCancelled))
	is.True(time.Since(start) < time.Minute) // did not sit out the backoff
}

func TestRetry_DeadlineSurfacesLastError(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	calls := 0
	_, err := Retry(ctx, RetryConfig{MaxRetries: 10, BaseDelay: 20 * time.Millisecond}, nil, "test",
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, NewRecoverableError(errFlaky, "open stream")
		})

	is.True(calls >= 1 && calls < 11)                 // the deadline ended the retries
	is.True(errors.Is(err, errFlaky))                 // last provider error is surfaced
	is.True(errors.Is(err, context.DeadlineExceeded)) // and reported as a timeout
	is.True(!errors.Is(err, ErrCancelled))            // not as a cancellation
}

func TestRetry_DeadlineDuringAttempt(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Retry(ctx, fastRetry(3), nil, "test", func(ctx context.Context, attempt int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	is.True(errors.Is(err, context.DeadlineExceeded))
	is.True(!IsCancelled(err))
}

func TestRetry_ProviderTimeoutIsRetried(t *testing.T) {
	is := is.New(t)

	calls := 0
	got, err := Retry(context.Background(), fastRetry(2), nil, "test", func(ctx context.Context, attempt int) (string, error) {
		calls++
		if calls == 1 {
			return "", context.DeadlineExceeded // e.g. an HTTP client timeout
		}
		return "ok", nil
	})

	is.NoErr(err)
	is.Equal(got, "ok")
	is.Equal(calls, 2)
}

func TestLinearBackOff(t *testing.T) {
	is := is.New(t)

	b := &LinearBackOff{Base: 500 * time.Millisecond, Max: 1200 * time.Millisecond}
	is.Equal(b.NextBackOff(), 500*time.Millisecond)
	is.Equal(b.NextBackOff(), time.Second)
	is.Equal(b.NextBackOff(), 1200*time.Millisecond) // capped

	b.Reset()
	is.Equal(b.NextBackOff(), 500*time.Millisecond)
}

func TestRetryConfig_MaxAttempts(t *testing.T) {
	tests := []struct {
		retries int
		want    int
	}{
		{retries: -1, want: 1},
		{retries: 0, want: 1},
		{retries: 2, want: 3},
	}

	for _, tt := range tests {
		if got := (RetryConfig{MaxRetries: tt.retries}).MaxAttempts(); got != tt.want {
			t.Errorf("MaxAttempts() with %d retries = %d, want %d", tt.retries, got, tt.want)
		}
	}
}

func TestRetryableError_Classification(t *testing.T) {
	is := is.New(t)

	rec := NewRecoverableError(errFlaky, "stream open")
	is.True(IsRecoverable(rec))
	is.True(!IsFatal(rec))
	is.Equal(rec.Error(), "stream open: connection refused")

	fatal := NewFatalError(nil, "unsupported model")
	is.True(IsFatal(fatal))
	is.Equal(fatal.Error(), "unsupported model")
}
