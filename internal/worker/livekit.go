package worker

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chriscow/livekit-translate-go/internal/config"
	"github.com/chriscow/livekit-translate-go/internal/telemetry"
	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
	"github.com/chriscow/livekit-translate-go/pkg/ai/stt"
	"github.com/chriscow/livekit-translate-go/pkg/ai/tts"
	"github.com/chriscow/livekit-translate-go/pkg/job"
	"github.com/chriscow/livekit-translate-go/pkg/relay"
	"github.com/chriscow/livekit-translate-go/pkg/sink"
	"github.com/chriscow/livekit-translate-go/pkg/translate"
)

// Providers are the AI services shared by every room.
type Providers struct {
	LLM   llm.StreamingLLM
	STT   stt.STT
	Synth tts.Synthesizer // nil disables speech
}

// Launcher joins LiveKit rooms and runs a RoomWorker in each. Its Run
// method is a RunFunc for the Supervisor.
type Launcher struct {
	cfg       *config.Config
	providers Providers
	recorder  *telemetry.Recorder
	redis     goredis.UniversalClient
	logger    *slog.Logger
}

// NewLauncher creates a Launcher. redis may be nil when no Redis sink is
// configured.
func NewLauncher(cfg *config.Config, providers Providers, recorder *telemetry.Recorder, redis goredis.UniversalClient, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		cfg:       cfg,
		providers: providers,
		recorder:  recorder,
		redis:     redis,
		logger:    logger,
	}
}

// Assignments maps room names to their configured target languages.
func (l *Launcher) Assignments(rooms []string) ([]Assignment, error) {
	out := make([]Assignment, 0, len(rooms))
	for _, room := range rooms {
		lang, err := l.cfg.ResolveRoom(room)
		if err != nil {
			return nil, err
		}
		out = append(out, Assignment{Room: room, Language: lang})
	}
	return out, nil
}

// RoomConfig builds the pipeline configuration for a target language.
func (l *Launcher) RoomConfig(room, language string) (RoomConfig, error) {
	target, ok := l.cfg.Target(language)
	if !ok {
		return RoomConfig{}, fmt.Errorf("unsupported target language %q", language)
	}

	driver := translate.DefaultDriverConfig()
	driver.Model = l.cfg.Translation.Model
	driver.Temperature = l.cfg.Translation.Temperature
	driver.MaxTokens = l.cfg.Translation.MaxTokens
	driver.Retry = ai.RetryConfig{
		MaxRetries: l.cfg.Translation.MaxRetries,
		BaseDelay:  l.cfg.Translation.RetryBaseDelay,
	}
	driver.Languages = l.cfg.SupportedLanguages()

	return RoomConfig{
		Room:   room,
		Source: l.cfg.Source(),
		Target: target,
		Driver: driver,
		SynthesisRetry: ai.RetryConfig{
			MaxRetries: l.cfg.Synthesis.MaxRetries,
			BaseDelay:  l.cfg.Synthesis.RetryBaseDelay,
		},
		Fanout: relay.FanoutConfig{
			QueueSize:   l.cfg.Sinks.QueueSize,
			EmitTimeout: l.cfg.Sinks.EmitTimeout,
		},
		HistorySize:        l.cfg.HistorySize,
		Greeting:           l.cfg.Greeting,
		ForwardTranscripts: l.cfg.ForwardTranscripts,
		STTModel:           l.cfg.STT.Model,
		InterimResults:     l.cfg.STT.InterimResults,
		STTRetry: ai.RetryConfig{
			MaxRetries: l.cfg.STT.MaxRetries,
			BaseDelay:  l.cfg.STT.RetryBaseDelay,
		},
		DataChannel: l.cfg.Sinks.DataChannel,
	}, nil
}

// Run joins the job's room and translates it until ctx is done or the
// connection drops.
func (l *Launcher) Run(ctx context.Context, j *job.Job) error {
	logger := l.logger.With(slog.String("room", j.RoomName), slog.String("language", j.Language))

	rc, err := l.RoomConfig(j.RoomName, j.Language)
	if err != nil {
		return err
	}

	identity := fmt.Sprintf("%s-%s", l.cfg.Identity, j.Language)
	token, err := job.NewJoinToken(l.cfg.LiveKit.APIKey, l.cfg.LiveKit.APISecret, j.RoomName, identity, job.DefaultTokenTTL)
	if err != nil {
		return err
	}

	room, err := job.NewRoom(ctx, job.RoomConfig{
		URL:       l.cfg.LiveKit.URL,
		Token:     token,
		RoomName:  j.RoomName,
		TrackName: "translation-" + j.Language,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := room.Connect(); err != nil {
		return err
	}
	j.Context.OnShutdown(func(string) { _ = room.Disconnect() })
	defer room.Disconnect()

	sinks, closeSinks := l.sinks(j.RoomName, logger)
	defer closeSinks()

	deps := Deps{
		Events:   room.Events,
		Data:     room,
		STT:      l.providers.STT,
		LLM:      l.providers.LLM,
		Sinks:    sinks,
		Recorder: l.recorder,
	}
	if l.providers.Synth != nil {
		deps.Audio = room
		deps.Synth = l.providers.Synth
	}

	w, err := NewRoomWorker(rc, deps, logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func (l *Launcher) sinks(room string, logger *slog.Logger) ([]relay.Sink, func()) {
	var sinks []relay.Sink
	closers := []func(){}

	if l.cfg.Sinks.WebSocketURL != "" {
		ws := sink.NewWebSocket(l.cfg.Sinks.WebSocketURL, l.cfg.Sinks.WebSocketToken, logger)
		sinks = append(sinks, ws)
		closers = append(closers, func() {
			if err := ws.Close(); err != nil {
				logger.Debug("Closing websocket sink failed", slog.String("error", err.Error()))
			}
		})
	}

	if l.redis != nil {
		sinks = append(sinks, sink.NewRedis(l.redis, sink.RedisConfig{
			Prefix:  l.cfg.Sinks.RedisPrefix,
			Room:    room,
			LastTTL: l.cfg.Sinks.RedisLastTTL,
		}))
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
