package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/tts"
	"github.com/chriscow/livekit-translate-go/pkg/relay"
	"github.com/chriscow/livekit-translate-go/pkg/rtc"
	"github.com/chriscow/livekit-translate-go/pkg/translate"
)

// SpeechConfig configures a Speech sink.
type SpeechConfig struct {
	// Voices maps a target language to a provider voice.
	Voices map[string]string

	// OnSpoken is called after audio is handed to the publisher.
	OnSpoken func(msg relay.Message, frames int)
}

// Speech voices complete translations. Interim and partial messages are
// skipped. When synthesis still fails after retries a status message is sent
// through the Notifier.
type Speech struct {
	synth     *tts.RetrySynthesizer
	publisher AudioPublisher
	notifier  Notifier
	cfg       SpeechConfig
	logger    *slog.Logger
}

// NewSpeech creates a speech sink. notifier may be nil.
func NewSpeech(synth *tts.RetrySynthesizer, publisher AudioPublisher, notifier Notifier, cfg SpeechConfig, logger *slog.Logger) *Speech {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speech{
		synth:     synth,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Speech) Name() string { return "speech" }

// Emit synthesizes msg.Text and publishes the audio.
func (s *Speech) Emit(ctx context.Context, msg relay.Message) error {
	if msg.Type != relay.TypeTranslation || !msg.IsFinal || msg.Partial {
		return nil
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	start := time.Now()
	audio, err := s.synth.SynthesizeWithRetry(ctx, tts.SynthesizeRequest{
		Text:     msg.Text,
		Voice:    s.cfg.Voices[msg.TargetLanguage],
		Language: msg.TargetLanguage,
	})
	if err != nil {
		if errors.Is(err, translate.ErrCancelled) || ai.ContextCancelled(ctx) {
			return err
		}
		err = fmt.Errorf("%w: %w", translate.ErrSynthesisFailed, err)
		s.notify(msg, err)
		return err
	}

	frames, err := decode(audio)
	if err != nil {
		err = fmt.Errorf("%w: %w", translate.ErrSynthesisFailed, err)
		s.notify(msg, err)
		return err
	}

	if err := s.publisher.PublishAudio(ctx, frames); err != nil {
		return fmt.Errorf("failed to publish audio: %w", err)
	}

	s.logger.Debug("Translation voiced",
		slog.String("session_id", msg.SessionID),
		slog.String("language", msg.TargetLanguage),
		slog.Int("frames", len(frames)),
		slog.Duration("elapsed", time.Since(start)))

	if s.cfg.OnSpoken != nil {
		s.cfg.OnSpoken(msg, len(frames))
	}
	return nil
}

func (s *Speech) notify(msg relay.Message, err error) {
	s.logger.Error("Speech synthesis failed",
		slog.String("session_id", msg.SessionID),
		slog.String("language", msg.TargetLanguage),
		slog.String("error", err.Error()))

	if s.notifier != nil {
		s.notifier.Dispatch(relay.NewStatus(relay.StatusSynthesisFailed, err,
			msg.SourceLanguage, msg.TargetLanguage, time.Now()))
	}
}

func decode(audio *tts.Audio) ([]rtc.AudioFrame, error) {
	if audio.Format != tts.FormatOggOpus {
		return nil, fmt.Errorf("unsupported audio format %q", audio.Format)
	}

	var frames []rtc.AudioFrame
	err := rtc.ReadOggOpus(bytes.NewReader(audio.Data), func(f rtc.AudioFrame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("synthesized audio has no frames")
	}
	return frames, nil
}
