package tts

import (
	"context"
	"log/slog"
	"strings"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
)

// RetrySynthesizer retries a Synthesizer with linear backoff. It is itself a
// Synthesizer.
type RetrySynthesizer struct {
	next   Synthesizer
	cfg    ai.RetryConfig
	logger *slog.Logger
}

// WithRetry wraps s. A zero cfg uses ai.DefaultRetryConfig.
func WithRetry(s Synthesizer, cfg ai.RetryConfig, logger *slog.Logger) *RetrySynthesizer {
	if cfg == (ai.RetryConfig{}) {
		cfg = ai.DefaultRetryConfig
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrySynthesizer{next: s, cfg: cfg, logger: logger}
}

// SynthesizeWithRetry calls the wrapped synthesizer up to MaxRetries+1 times,
// waiting BaseDelay × attempt between attempts. Blank text fails with
// ErrEmptyText before any attempt. When every attempt fails the provider's
// last error is returned as is; cancellation wraps ai.ErrCancelled.
func (r *RetrySynthesizer) SynthesizeWithRetry(ctx context.Context, req SynthesizeRequest) (*Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	return ai.Retry(ctx, r.cfg, r.logger, "synthesis", func(ctx context.Context, attempt int) (*Audio, error) {
		return r.next.Synthesize(ctx, req)
	})
}

// Synthesize implements Synthesizer.
func (r *RetrySynthesizer) Synthesize(ctx context.Context, req SynthesizeRequest) (*Audio, error) {
	return r.SynthesizeWithRetry(ctx, req)
}

// Capabilities implements Synthesizer.
func (r *RetrySynthesizer) Capabilities() TTSCapabilities {
	return r.next.Capabilities()
}
