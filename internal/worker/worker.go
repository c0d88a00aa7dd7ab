// Package worker runs one translation pipeline per LiveKit room and keeps
// every configured room staffed.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"github.com/chriscow/livekit-translate-go/internal/telemetry"
	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
	"github.com/chriscow/livekit-translate-go/pkg/ai/stt"
	"github.com/chriscow/livekit-translate-go/pkg/ai/tts"
	"github.com/chriscow/livekit-translate-go/pkg/job"
	"github.com/chriscow/livekit-translate-go/pkg/relay"
	"github.com/chriscow/livekit-translate-go/pkg/rtc"
	"github.com/chriscow/livekit-translate-go/pkg/sink"
	"github.com/chriscow/livekit-translate-go/pkg/translate"
)

var (
	// ErrRoomDisconnected is returned by Run when the server drops the room.
	ErrRoomDisconnected = errors.New("room disconnected")

	// ErrTranscriptionUnavailable is returned by Run when a speaker's
	// transcription stream cannot be reopened after all retries.
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")
)

var (
	errTranslationStopped = errors.New("translation stopped by control message")
	errStreamLost         = errors.New("transcription stream lost")
)

// DefaultShutdownTimeout bounds how long Run waits for in-flight sessions.
const DefaultShutdownTimeout = 5 * time.Second

// RoomConfig configures one room's pipeline.
type RoomConfig struct {
	Room   string
	Source translate.Language
	Target translate.Language

	Driver         translate.DriverConfig
	SynthesisRetry ai.RetryConfig
	Fanout         relay.FanoutConfig

	// HistorySize is how many prior transcript/translation pairs are sent
	// as context with each request.
	HistorySize int

	// Greeting is translated and voiced once on start ("" disables).
	Greeting string

	// ForwardTranscripts relays source captions as transcript messages.
	ForwardTranscripts bool

	STTModel       string
	InterimResults bool

	// STTRetry governs (re)opening a speaker's transcription stream. A zero
	// value uses ai.DefaultRetryConfig.
	STTRetry ai.RetryConfig

	// DataChannel adds the room data channel as a subtitle sink.
	DataChannel bool

	ShutdownTimeout time.Duration
}

// Deps are the collaborators of a RoomWorker.
type Deps struct {
	// Events is the room's event stream. Run returns when it closes.
	Events <-chan *job.Event

	Data  sink.DataPublisher  // nil disables the data channel and control replies
	Audio sink.AudioPublisher // nil disables speech

	STT   stt.STT
	LLM   llm.StreamingLLM
	Synth tts.Synthesizer // nil disables speech

	// Sinks are extra subtitle destinations such as WebSocket or Redis.
	Sinks []relay.Sink

	Recorder *telemetry.Recorder
}

// RoomWorker transcribes a room's speakers, translates every finalized
// utterance and relays the result to the room's sinks.
type RoomWorker struct {
	cfg    RoomConfig
	deps   Deps
	logger *slog.Logger

	fanout   *relay.Fanout
	registry *relay.Registry
	driver   *translate.Driver
	relay    *relay.Relay

	enabled atomic.Bool

	histMu  sync.Mutex
	history []llm.Message

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup

	tracks sync.WaitGroup
	failed chan error
}

// NewRoomWorker validates cfg and deps.
func NewRoomWorker(cfg RoomConfig, deps Deps, logger *slog.Logger) (*RoomWorker, error) {
	if deps.Events == nil {
		return nil, fmt.Errorf("room events are required")
	}
	if deps.STT == nil {
		return nil, fmt.Errorf("an STT provider is required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("a translation provider is required")
	}
	if cfg.Target.Code == "" {
		return nil, fmt.Errorf("target language is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.STTRetry == (ai.RetryConfig{}) {
		cfg.STTRetry = ai.DefaultRetryConfig
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &RoomWorker{
		cfg:    cfg,
		deps:   deps,
		failed: make(chan error, 1),
		logger: logger.With(
			slog.String("room", cfg.Room),
			slog.String("target_language", cfg.Target.Code)),
	}
	w.registry = relay.NewRegistry(w.logger)
	w.driver = translate.NewDriver(deps.LLM, cfg.Driver, w.logger)
	w.enabled.Store(true)
	return w, nil
}

// Run processes room events until ctx is done, the event stream closes, the
// room disconnects or a speaker can no longer be transcribed. In-flight
// sessions, syntheses and track readers are stopped and subtitle sinks
// drained before it returns.
func (w *RoomWorker) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	w.start(ctx)
	defer w.shutdown(cancel)

	w.logger.Info("Room worker started",
		slog.String("source_language", w.cfg.Source.Code),
		slog.Any("sinks", w.fanout.Sinks()))

	if w.cfg.Greeting != "" {
		w.translate(ctx, w.cfg.Greeting, false)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Room worker shutting down")
			return nil
		case ev, ok := <-w.deps.Events:
			if !ok {
				w.logger.Info("Room event stream closed")
				return nil
			}
			if err := w.handleEvent(ctx, ev); err != nil {
				return err
			}
		case err := <-w.failed:
			w.logger.Error("Room worker failed", slog.String("error", err.Error()))
			return err
		}
	}
}

// Stats returns the worker's session counters.
func (w *RoomWorker) Stats() relay.RegistryStats {
	return w.registry.Stats()
}

func (w *RoomWorker) start(ctx context.Context) {
	var sinks []relay.Sink
	if w.cfg.DataChannel && w.deps.Data != nil {
		sinks = append(sinks, observedSink{
			Sink:   sink.NewDataChannel(w.deps.Data),
			onEmit: func(relay.Message) { w.deps.Recorder.SubtitleBroadcast() },
		})
	}
	sinks = append(sinks, w.deps.Sinks...)

	if w.deps.Synth != nil && w.deps.Audio != nil {
		synth := tts.WithRetry(countingSynthesizer{
			Synthesizer: w.deps.Synth,
			onCall:      w.deps.Recorder.SynthesisRequested,
		}, w.cfg.SynthesisRetry, w.logger)

		speech := sink.NewSpeech(synth, w.deps.Audio, dispatchFunc(w.dispatch), sink.SpeechConfig{
			Voices:   map[string]string{w.cfg.Target.Code: w.cfg.Target.Voice},
			OnSpoken: func(relay.Message, int) { w.deps.Recorder.AudioPublished() },
		}, w.logger)
		// Pending syntheses stop with the worker; subtitles still drain.
		sinks = append(sinks, relay.Interruptible(ctx, speech))
	}

	fcfg := w.cfg.Fanout
	fcfg.OnFailure = func(name string, err error) {
		w.deps.Recorder.SinkFailed(context.Background(), name)
	}

	// Sinks keep draining after ctx ends so the closing messages go out.
	w.fanout = relay.NewFanout(context.WithoutCancel(ctx), fcfg, w.logger, sinks...)
	w.relay = relay.New(w.fanout, w.logger, relay.WithObserver(relay.Observer{
		OnChunk: func(s *relay.Session, _ string) {
			if s.Chunks() == 1 {
				w.deps.Recorder.FirstChunk(context.Background(), s.TargetLanguage, time.Since(s.StartedAt))
			}
			w.deps.Recorder.ChunkRelayed(context.Background(), s.TargetLanguage)
		},
	}))
}

func (w *RoomWorker) shutdown(stop context.CancelFunc) {
	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()

	if err := w.registry.Close(ctx); err != nil {
		w.logger.Warn("Sessions did not end before shutdown timeout", slog.String("error", err.Error()))
	}
	if !wait(ctx, &w.wg) {
		w.logger.Warn("Translations still running at shutdown")
	}
	if !wait(ctx, &w.tracks) {
		w.logger.Warn("Audio tracks still being read at shutdown")
	}

	w.fanout.Close()

	stats := w.registry.Stats()
	w.logger.Info("Room worker stopped",
		slog.Int64("sessions", stats.Started),
		slog.Int64("finalized", stats.Finalized),
		slog.Int64("failed", stats.Failed))
}

func (w *RoomWorker) handleEvent(ctx context.Context, ev *job.Event) error {
	switch ev.Type {
	case job.EventTrackSubscribed:
		if ev.Audio != nil {
			w.tracks.Add(1)
			go func() {
				defer w.tracks.Done()
				w.transcribe(ctx, ev.Identity(), ev.Audio)
			}()
		}

	case job.EventDataReceived:
		w.handleControl(ev)

	case job.EventParticipantConnected, job.EventParticipantDisconnected:
		w.logger.Debug("Participant update",
			slog.String("event", string(ev.Type)),
			slog.String("identity", ev.Identity()))

	case job.EventDisconnected:
		return ErrRoomDisconnected
	}
	return nil
}

// transcribe streams one remote audio track into the STT provider until the
// track ends or ctx is done. A stream the provider drops is reopened; when
// reopening keeps failing the worker is stopped with
// ErrTranscriptionUnavailable.
func (w *RoomWorker) transcribe(ctx context.Context, identity string, track job.AudioTrack) {
	logger := w.logger.With(slog.String("participant", identity))

	// Unblock a pending read once the worker stops.
	stopRead := context.AfterFunc(ctx, func() { _ = track.SetReadDeadline(time.Now()) })
	defer stopRead()

	reopen := &ai.LinearBackOff{Base: w.cfg.STTRetry.BaseDelay, Max: w.cfg.STTRetry.MaxDelay}
	var pending *rtp.Packet
	packets := 0

	for ctx.Err() == nil {
		stream, err := ai.Retry(ctx, w.cfg.STTRetry, logger, "transcription stream open",
			func(ctx context.Context, _ int) (stt.STTStream, error) {
				return w.deps.STT.NewStream(ctx, w.streamConfig())
			})
		if err != nil {
			if !ai.IsCancelled(err) {
				w.fail(fmt.Errorf("%w: %s: %w", ErrTranscriptionUnavailable, identity, err))
			}
			return
		}

		logger.Info("Transcribing audio track")

		var n int
		n, pending, err = w.stream(ctx, identity, track, stream, pending)
		packets += n
		if !errors.Is(err, errStreamLost) {
			logger.Debug("Audio track ended", slog.String("reason", err.Error()))
			break
		}

		if n > 0 {
			reopen.Reset()
		}
		delay := reopen.NextBackOff()
		logger.Warn("Transcription stream lost, reopening",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	logger.Info("Stopped transcribing audio track", slog.Int("packets", packets))
}

func (w *RoomWorker) streamConfig() stt.StreamConfig {
	return stt.StreamConfig{
		SampleRate:     rtc.OpusSampleRate,
		NumChannels:    rtc.OpusChannels,
		Encoding:       rtc.EncodingOgg,
		Lang:           w.cfg.Source.Code,
		Model:          w.cfg.STTModel,
		InterimResults: w.cfg.InterimResults || w.cfg.ForwardTranscripts,
	}
}

// stream feeds track into one STT stream, starting with pending when set. It
// returns errStreamLost, together with the packet that could not be
// delivered, once the provider ends the stream; otherwise the track's read
// error.
func (w *RoomWorker) stream(ctx context.Context, identity string, track job.AudioTrack, stream stt.STTStream, pending *rtp.Packet) (int, *rtp.Packet, error) {
	lost := make(chan struct{})
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		if w.consume(ctx, identity, stream.Events()) {
			close(lost)
		}
	}()

	finish := func() {
		if err := stream.CloseSend(); err != nil {
			w.logger.Debug("Closing transcription stream failed", slog.String("error", err.Error()))
		}
		<-consumed
	}

	recorder, err := rtc.NewOggRecorder(stream.Push)
	if err != nil {
		finish()
		return 0, pending, fmt.Errorf("%w: %w", errStreamLost, err)
	}

	packets := 0
	for {
		pkt := pending
		pending = nil
		if pkt == nil {
			if pkt, err = track.ReadRTP(); err != nil {
				break
			}
		}

		select {
		case <-lost:
			pending, err = pkt, errStreamLost
		default:
			if werr := recorder.WriteRTP(pkt); werr != nil {
				pending, err = pkt, fmt.Errorf("%w: %w", errStreamLost, werr)
			}
		}
		if err != nil {
			break
		}
		packets++
	}

	_ = recorder.Close()
	finish()
	return packets, pending, err
}

// consume handles speech events until ctx is done. It reports whether the
// provider closed the event stream.
func (w *RoomWorker) consume(ctx context.Context, identity string, events <-chan stt.SpeechEvent) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return true
			}
			w.onSpeech(ctx, identity, ev)
		}
	}
}

// fail stops Run with err. Only the first failure is kept.
func (w *RoomWorker) fail(err error) {
	select {
	case w.failed <- err:
	default:
	}
}

func (w *RoomWorker) onSpeech(ctx context.Context, identity string, ev stt.SpeechEvent) {
	text := strings.TrimSpace(ev.Text)

	switch {
	case ev.Type == stt.SpeechEventError:
		w.logger.Warn("Transcription error",
			slog.String("participant", identity),
			slog.Any("error", ev.Error))

	case ev.IsFinal || ev.Type == stt.SpeechEventFinal:
		if text == "" {
			return
		}
		w.deps.Recorder.Transcribed()
		w.logger.Info("Transcript finalized",
			slog.String("participant", identity),
			slog.String("text", text),
			slog.Float64("confidence", ev.Confidence))

		if w.cfg.ForwardTranscripts {
			w.dispatch(relay.NewTranscript(text, true, w.cfg.Source.Code, w.cfg.Target.Code, time.Now()))
		}
		if !w.enabled.Load() {
			w.logger.Debug("Translation paused, transcript not translated")
			return
		}
		w.translate(ctx, text, true)

	default:
		if w.cfg.ForwardTranscripts && text != "" {
			w.dispatch(relay.NewTranscript(text, false, w.cfg.Source.Code, w.cfg.Target.Code, time.Now()))
		}
	}
}

// translate opens a session for text, cancelling the previous one, and
// relays it in the background. Sessions begin in transcript order.
func (w *RoomWorker) translate(ctx context.Context, text string, remember bool) {
	turns := w.turns(text)

	s, sessCtx, err := w.registry.Begin(ctx, w.cfg.Source.Code, w.cfg.Target.Code)
	if err != nil {
		if !errors.Is(err, relay.ErrRegistryClosed) && ctx.Err() == nil {
			w.logger.Warn("Failed to begin translation session", slog.String("error", err.Error()))
		}
		return
	}

	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		w.registry.End(s)
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	w.deps.Recorder.SessionStarted(ctx, w.cfg.Target.Code)

	go func() {
		defer w.wg.Done()
		w.runSession(sessCtx, s, text, turns, remember)
	}()
}

func (w *RoomWorker) runSession(ctx context.Context, s *relay.Session, text string, turns []llm.Message, remember bool) {
	logger := w.logger.With(slog.String("session_id", s.ID))

	chunks, err := w.driver.Translate(ctx, turns, w.cfg.Target.Code)
	if err != nil {
		_ = s.Fail(err)
		w.registry.End(s)
		w.deps.Recorder.SessionEnded(context.Background(), w.cfg.Target.Code, false)

		switch {
		case errors.Is(err, translate.ErrUpstreamUnavailable):
			logger.Error("Translation provider unavailable", slog.String("error", err.Error()))
			w.dispatch(relay.NewStatus(relay.StatusUpstreamUnavailable, err, w.cfg.Source.Code, w.cfg.Target.Code, time.Now()))
		case errors.Is(err, translate.ErrCancelled):
			logger.Debug("Translation cancelled before streaming")
		default:
			logger.Error("Translation request rejected", slog.String("error", err.Error()))
		}
		return
	}

	if err := w.relay.Run(ctx, s, chunks); err != nil && !errors.Is(err, translate.ErrCancelled) {
		logger.Warn("Translation ended early", slog.String("error", err.Error()))
	}

	finalized := s.State() == relay.StateFinalized
	translation := s.Text()
	w.registry.End(s)
	w.deps.Recorder.SessionEnded(context.Background(), w.cfg.Target.Code, finalized)

	if finalized {
		logger.Info("Translation complete",
			slog.String("translation", translation),
			slog.Int("chunks", s.Chunks()))
		if remember {
			w.remember(text, translation)
		}
	}
}

func (w *RoomWorker) turns(text string) []llm.Message {
	w.histMu.Lock()
	msgs := make([]llm.Message, 0, len(w.history)+1)
	msgs = append(msgs, w.history...)
	w.histMu.Unlock()

	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: text})
	return translate.NormalizeTurns(msgs, translate.Directive(w.cfg.Source, w.cfg.Target))
}

func (w *RoomWorker) remember(transcript, translation string) {
	if w.cfg.HistorySize <= 0 {
		return
	}

	w.histMu.Lock()
	defer w.histMu.Unlock()

	w.history = append(w.history,
		llm.Message{Role: llm.RoleUser, Content: transcript},
		llm.Message{Role: llm.RoleAssistant, Content: translation})
	if max := 2 * w.cfg.HistorySize; len(w.history) > max {
		w.history = append([]llm.Message(nil), w.history[len(w.history)-max:]...)
	}
}

func (w *RoomWorker) handleControl(ev *job.Event) {
	c, ok := parseControl(ev.Data)
	if !ok {
		return
	}

	w.logger.Info("Control message received",
		slog.String("type", c.Type),
		slog.String("participant", ev.Identity()))

	switch c.Type {
	case ControlPing:
		if w.deps.Data == nil {
			return
		}
		pong, err := json.Marshal(Control{Type: ControlPong, Data: c.Data})
		if err != nil {
			return
		}
		if err := w.deps.Data.PublishData(pong); err != nil {
			w.logger.Warn("Failed to answer ping", slog.String("error", err.Error()))
		}

	case ControlStop:
		if w.enabled.Swap(false) {
			w.registry.CancelCurrent(errTranslationStopped)
			w.dispatch(relay.NewStatus(relay.StatusTranslationStopped, nil, w.cfg.Source.Code, w.cfg.Target.Code, time.Now()))
		}

	case ControlStart:
		if !w.enabled.Swap(true) {
			w.dispatch(relay.NewStatus(relay.StatusTranslationStarted, nil, w.cfg.Source.Code, w.cfg.Target.Code, time.Now()))
		}
	}
}

// wait blocks until wg is done or ctx ends. It reports whether wg finished.
func wait(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *RoomWorker) dispatch(msg relay.Message) {
	w.fanout.Dispatch(msg)
}

// dispatchFunc adapts a function to sink.Notifier.
type dispatchFunc func(relay.Message)

func (f dispatchFunc) Dispatch(msg relay.Message) { f(msg) }

// observedSink calls onEmit after every successful emit.
type observedSink struct {
	relay.Sink
	onEmit func(relay.Message)
}

func (o observedSink) Emit(ctx context.Context, msg relay.Message) error {
	if err := o.Sink.Emit(ctx, msg); err != nil {
		return err
	}
	o.onEmit(msg)
	return nil
}

// countingSynthesizer calls onCall before every synthesis attempt.
type countingSynthesizer struct {
	tts.Synthesizer
	onCall func()
}

func (c countingSynthesizer) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (*tts.Audio, error) {
	c.onCall()
	return c.Synthesizer.Synthesize(ctx, req)
}
