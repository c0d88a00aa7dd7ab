package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
)

// Request defaults. Low temperature keeps translations literal and consistent.
const (
	DefaultTemperature float32 = 0.2
	DefaultMaxTokens           = 2048
)

// ChunkKind distinguishes incremental text from the terminal markers.
type ChunkKind int

const (
	// ChunkDelta carries one non-empty increment of translated text.
	ChunkDelta ChunkKind = iota
	// ChunkFinal ends a completed stream; Text is the full translation.
	ChunkFinal
	// ChunkInterrupted ends a broken stream; Text is the partial translation.
	ChunkInterrupted
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkDelta:
		return "delta"
	case ChunkFinal:
		return "final"
	case ChunkInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("ChunkKind(%d)", int(k))
	}
}

// Chunk is one element of a translation stream.
type Chunk struct {
	Kind ChunkKind
	Text string
	Err  error // set for ChunkInterrupted
}

// Terminal reports whether c ends its stream.
func (c Chunk) Terminal() bool {
	return c.Kind != ChunkDelta
}

// DriverConfig configures translation requests.
type DriverConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Retry       ai.RetryConfig

	// Languages, when non-empty, restricts the accepted target languages.
	Languages []string

	// BufferSize is the capacity of the returned chunk channel.
	BufferSize int
}

// DefaultDriverConfig returns the reference tuning: temperature 0.2, 2048
// tokens, three connection attempts 0.5s × attempt apart.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Retry:       ai.DefaultRetryConfig,
		BufferSize:  16,
	}
}

// Driver issues streaming translation requests.
type Driver struct {
	provider llm.StreamingLLM
	cfg      DriverConfig
	logger   *slog.Logger
}

// NewDriver creates a Driver for provider.
func NewDriver(provider llm.StreamingLLM, cfg DriverConfig, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	return &Driver{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// Translate opens a streaming translation of turns into targetLanguage.
//
// Opening the stream is retried on recoverable failures; when every attempt
// fails the error wraps ErrUpstreamUnavailable. The returned channel yields
// ChunkDelta values in provider order followed by exactly one terminal chunk
// (ChunkFinal or ChunkInterrupted), then closes. If ctx is cancelled and the
// consumer is no longer receiving, the terminal chunk may be dropped; the
// channel is still closed.
func (d *Driver) Translate(ctx context.Context, turns []llm.Message, targetLanguage string) (<-chan Chunk, error) {
	if err := d.validate(turns, targetLanguage); err != nil {
		return nil, err
	}
	if ai.ContextCancelled(ctx) {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
	}

	req := llm.ChatRequest{
		Messages:    turns,
		Model:       d.cfg.Model,
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
	}

	logger := d.logger.With(slog.String("target_language", targetLanguage))
	start := time.Now()
	attempts := 0
	stream, err := ai.Retry(ctx, d.cfg.Retry, logger, "translation stream open",
		func(ctx context.Context, attempt int) (llm.ChatStream, error) {
			attempts = attempt
			return d.provider.ChatStream(ctx, req)
		})
	if err != nil {
		if ai.IsCancelled(err) {
			return nil, err
		}
		logger.Error("Translation provider unavailable",
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrUpstreamUnavailable, attempts, err)
	}

	logger.Debug("Translation stream opened",
		slog.Int("turns", len(turns)),
		slog.Int("attempts", attempts),
		slog.Duration("open_latency", time.Since(start)))

	out := make(chan Chunk, d.cfg.BufferSize)
	go d.pump(ctx, stream, out, logger, start)
	return out, nil
}

func (d *Driver) validate(turns []llm.Message, targetLanguage string) error {
	if len(turns) == 0 {
		return fmt.Errorf("%w: no turns to translate", ErrInvalidInput)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("%w: turn %d has role %q", ErrInvalidInput, i, t.Role)
		}
		if strings.TrimSpace(t.Content) == "" {
			return fmt.Errorf("%w: turn %d is empty", ErrInvalidInput, i)
		}
	}
	if targetLanguage == "" {
		return fmt.Errorf("%w: target language is required", ErrInvalidInput)
	}
	if len(d.cfg.Languages) > 0 && !slices.Contains(d.cfg.Languages, targetLanguage) {
		return fmt.Errorf("%w: unsupported target language %q", ErrInvalidInput, targetLanguage)
	}
	return nil
}

// pump forwards provider increments to out. Each delta is appended to the
// running text once, after it has been delivered.
func (d *Driver) pump(ctx context.Context, stream llm.ChatStream, out chan<- Chunk, logger *slog.Logger, start time.Time) {
	defer close(out)
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Debug("Error closing translation stream", slog.String("error", err.Error()))
		}
	}()

	var full strings.Builder
	deltas := 0
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			logger.Debug("Translation stream completed",
				slog.Int("deltas", deltas),
				slog.Duration("duration", time.Since(start)))
			finish(ctx, out, Chunk{Kind: ChunkFinal, Text: full.String()})
			return
		}
		if err != nil {
			cause := ErrStreamInterrupted
			if ai.ContextCancelled(ctx) || ai.IsCancelled(err) {
				cause = ErrCancelled
			}
			logger.Warn("Translation stream interrupted",
				slog.Int("deltas", deltas),
				slog.Int("partial_len", full.Len()),
				slog.String("error", err.Error()))
			finish(ctx, out, Chunk{Kind: ChunkInterrupted, Text: full.String(), Err: fmt.Errorf("%w: %w", cause, err)})
			return
		}
		if delta == "" {
			continue
		}

		select {
		case out <- Chunk{Kind: ChunkDelta, Text: delta}:
			full.WriteString(delta)
			deltas++
		case <-ctx.Done():
			cause := ErrCancelled
			if !ai.ContextCancelled(ctx) {
				cause = ErrStreamInterrupted
			}
			finish(ctx, out, Chunk{Kind: ChunkInterrupted, Text: full.String(), Err: fmt.Errorf("%w: %w", cause, context.Cause(ctx))})
			return
		}
	}
}

// finish delivers the terminal chunk. Once ctx is done it only delivers if
// the consumer is ready.
func finish(ctx context.Context, out chan<- Chunk, c Chunk) {
	select {
	case out <- c:
		return
	case <-ctx.Done():
	}
	select {
	case out <- c:
	default:
	}
}
