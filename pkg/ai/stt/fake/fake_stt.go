package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/ai/stt"
	"github.com/chriscow/livekit-translate-go/pkg/rtc"
)

const (
	// DefaultFramesPerUtterance is how many pushed frames make one utterance.
	DefaultFramesPerUtterance = 10
	// DefaultTranscript is used when no transcript is provided
	DefaultTranscript = "你好，欢迎收听今天的节目。"
)

// ErrStreamClosed is returned by Push after CloseSend.
var ErrStreamClosed = errors.New("stream is closed")

// FakeSTT is a fake STT implementation for testing. Each stream cycles
// through the configured utterances, completing one every
// FramesPerUtterance pushed frames with an interim then a final event.
type FakeSTT struct {
	FramesPerUtterance int
	Language           string

	utterances []string
}

// NewFakeSTT creates a new fake STT provider.
func NewFakeSTT(utterances ...string) *FakeSTT {
	if len(utterances) == 0 {
		utterances = []string{DefaultTranscript}
	}
	return &FakeSTT{
		FramesPerUtterance: DefaultFramesPerUtterance,
		Language:           "zh",
		utterances:         utterances,
	}
}

// NewStream creates a new fake STT stream.
func (f *FakeSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang := cfg.Lang
	if lang == "" {
		lang = f.Language
	}
	per := f.FramesPerUtterance
	if per <= 0 {
		per = DefaultFramesPerUtterance
	}

	return &FakeSTTStream{
		utterances: f.utterances,
		per:        per,
		lang:       lang,
		interim:    cfg.InterimResults,
		events:     make(chan stt.SpeechEvent, 16),
		ctx:        ctx,
	}, nil
}

// Capabilities returns the fake STT capabilities.
func (f *FakeSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true,
		InterimResults:     true,
		SupportedLanguages: []string{"zh", "en"},
		Encodings:          []rtc.Encoding{rtc.EncodingOgg, rtc.EncodingOpus},
	}
}

// FakeSTTStream is a fake STT stream implementation.
type FakeSTTStream struct {
	utterances []string
	per        int
	lang       string
	interim    bool
	events     chan stt.SpeechEvent
	ctx        context.Context

	mu         sync.Mutex
	frameCount int
	next       int
	closed     bool
}

// Push counts an audio frame and emits events when an utterance completes.
func (s *FakeSTTStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	s.frameCount++
	if s.interim && s.frameCount%s.per == s.per/2 {
		text := []rune(s.utterances[s.next%len(s.utterances)])
		if err := s.send(stt.SpeechEvent{
			Type: stt.SpeechEventInterim,
			Text: string(text[:len(text)/2]),
		}); err != nil {
			return err
		}
	}
	if s.frameCount%s.per == 0 {
		text := s.utterances[s.next%len(s.utterances)]
		s.next++
		return s.send(stt.SpeechEvent{
			Type:       stt.SpeechEventFinal,
			Text:       text,
			IsFinal:    true,
			Confidence: 0.98,
		})
	}
	return nil
}

func (s *FakeSTTStream) send(ev stt.SpeechEvent) error {
	ev.Language = s.lang
	ev.Timestamp = time.Now().UnixMilli()
	select {
	case s.events <- ev:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Events returns the events channel.
func (s *FakeSTTStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// CloseSend closes the stream. Frames of an incomplete utterance are discarded.
func (s *FakeSTTStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
