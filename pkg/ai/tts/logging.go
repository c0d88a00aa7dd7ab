package tts

import (
	"context"
	"log/slog"
	"time"
)

type loggingSynthesizer struct {
	next   Synthesizer
	logger *slog.Logger
}

// NewLoggingSynthesizer logs every call to s at debug level.
func NewLoggingSynthesizer(s Synthesizer, logger *slog.Logger) Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingSynthesizer{next: s, logger: logger}
}

func (l *loggingSynthesizer) Synthesize(ctx context.Context, req SynthesizeRequest) (*Audio, error) {
	start := time.Now()
	l.logger.Debug("Synthesizing speech",
		slog.String("voice", req.Voice),
		slog.String("language", req.Language),
		slog.Int("text_length", len([]rune(req.Text))))

	audio, err := l.next.Synthesize(ctx, req)
	if err != nil {
		l.logger.Debug("Speech synthesis failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, err
	}

	l.logger.Debug("Speech synthesized",
		slog.Duration("elapsed", time.Since(start)),
		slog.String("format", string(audio.Format)),
		slog.Int("bytes", len(audio.Data)))
	return audio, nil
}

func (l *loggingSynthesizer) Capabilities() TTSCapabilities {
	return l.next.Capabilities()
}
