// Package deepgram streams room audio to Deepgram's live transcription API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/stt"
	"github.com/chriscow/livekit-translate-go/pkg/rtc"
	"github.com/gorilla/websocket"
)

const (
	// DefaultEndpoint is Deepgram's live transcription URL.
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	// DefaultModel is the transcription model.
	DefaultModel = "nova-3"
	// DefaultKeepAlive is how often an idle stream is kept open.
	DefaultKeepAlive = 5 * time.Second
)

// Config holds Deepgram configuration.
type Config struct {
	APIKey    string
	Endpoint  string
	Model     string
	Language  string
	KeepAlive time.Duration
	Logger    *slog.Logger
}

// DeepgramSTT creates live transcription streams.
type DeepgramSTT struct {
	cfg Config
}

// New creates a Deepgram provider.
func New(cfg Config) (*DeepgramSTT, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Deepgram API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DeepgramSTT{cfg: cfg}, nil
}

// Capabilities returns the provider's capabilities.
func (d *DeepgramSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true,
		InterimResults:     true,
		SupportedLanguages: []string{"zh", "zh-CN", "zh-TW", "en", "ja", "ko", "vi", "ms"},
		Encodings:          []rtc.Encoding{rtc.EncodingOgg},
	}
}

func (d *DeepgramSTT) listenURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(d.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = d.cfg.Model
	}
	lang := cfg.Lang
	if lang == "" {
		lang = d.cfg.Language
	}

	q := u.Query()
	q.Set("model", model)
	if lang != "" {
		q.Set("language", lang)
	}
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewStream opens a live transcription socket. Audio must be Ogg/Opus.
func (d *DeepgramSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	if cfg.Encoding != rtc.EncodingOgg {
		return nil, ai.NewFatalError(fmt.Errorf("unsupported encoding %s", cfg.Encoding), "deepgram accepts Ogg/Opus only")
	}

	u, err := d.listenURL(cfg)
	if err != nil {
		return nil, ai.NewFatalError(err, "invalid deepgram configuration")
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, resp, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ai.NewFatalError(err, "deepgram rejected credentials")
		}
		return nil, ai.NewRecoverableError(err, "failed to connect to deepgram")
	}

	d.cfg.Logger.Debug("Deepgram stream connected", slog.String("url", u))

	s := &stream{
		conn:   conn,
		events: make(chan stt.SpeechEvent, 32),
		done:   make(chan struct{}),
		logger: d.cfg.Logger,
		lang:   cfg.Lang,
	}
	go s.readLoop(ctx)
	go s.keepAlive(ctx, d.cfg.KeepAlive)
	return s, nil
}

type controlMessage struct {
	Type string `json:"type"`
}

type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

type stream struct {
	conn   *websocket.Conn
	events chan stt.SpeechEvent
	done   chan struct{}
	logger *slog.Logger
	lang   string

	writeMu sync.Mutex
	closed  bool
}

// Push sends Ogg/Opus bytes.
func (s *stream) Push(frame rtc.AudioFrame) error {
	if frame.Encoding != rtc.EncodingOgg {
		return fmt.Errorf("deepgram stream expects ogg frames, got %s", frame.Encoding)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return errors.New("stream is closed")
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
		return ai.NewRecoverableError(err, "failed to send audio to deepgram")
	}
	return nil
}

func (s *stream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// CloseSend asks Deepgram to flush and close. Events closes once the server
// has sent its last result.
func (s *stream) CloseSend() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.WriteJSON(controlMessage{Type: "CloseStream"})
}

func (s *stream) keepAlive(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			if !s.closed {
				if err := s.conn.WriteJSON(controlMessage{Type: "KeepAlive"}); err != nil {
					s.logger.Debug("Deepgram keep-alive failed", slog.String("error", err.Error()))
				}
			}
			s.writeMu.Unlock()
		}
	}
}

func (s *stream) readLoop(ctx context.Context) {
	defer close(s.events)
	defer close(s.done)
	defer s.conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) || s.isClosed() {
				return
			}
			s.emit(ctx, stt.SpeechEvent{
				Type:  stt.SpeechEventError,
				Error: ai.NewRecoverableError(err, "deepgram stream failed"),
			})
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			s.logger.Warn("Ignoring malformed deepgram message", slog.String("error", err.Error()))
			continue
		}
		if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
			continue
		}

		alt := resp.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		ev := stt.SpeechEvent{
			Type:       stt.SpeechEventInterim,
			Text:       alt.Transcript,
			IsFinal:    resp.IsFinal,
			Confidence: alt.Confidence,
		}
		if resp.IsFinal {
			ev.Type = stt.SpeechEventFinal
		}
		s.emit(ctx, ev)
	}
}

func (s *stream) isClosed() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.closed
}

func (s *stream) emit(ctx context.Context, ev stt.SpeechEvent) {
	ev.Language = s.lang
	ev.Timestamp = time.Now().UnixMilli()
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
