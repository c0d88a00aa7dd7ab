// Package stt provides interfaces and types for speech-to-text providers.
// A stream accepts encoded audio from a room track and reports interim and
// final transcripts; only final transcripts start a translation.
package stt

import (
	"context"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/rtc"
)

// STT-specific error variables for backward compatibility
var (
	// ErrRecoverable indicates a temporary STT failure that may succeed if retried.
	// Examples: network timeout, service unavailable, rate limiting.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent STT failure that will not succeed if retried.
	// Examples: invalid audio format, unsupported language, authentication failure.
	ErrFatal = ai.ErrFatal
)

// StreamConfig contains configuration for STT streams.
type StreamConfig struct {
	SampleRate     int
	NumChannels    int
	Encoding       rtc.Encoding
	Lang           string
	Model          string
	InterimResults bool
}

// SpeechEvent represents a speech recognition event containing transcription results or errors.
type SpeechEvent struct {
	Type       SpeechEventType // Type of event (interim, final, or error)
	Text       string          // Transcribed text (empty for error events)
	IsFinal    bool            // True if this is a final result that won't change
	Confidence float64         // Provider confidence in [0, 1], 0 when unknown
	Language   string          // Detected or configured language code
	Timestamp  int64           // Event timestamp in milliseconds since epoch
	Error      error           // Error details (only set for error events)
}

// SpeechEventType represents the type of speech recognition event.
type SpeechEventType int

const (
	// SpeechEventInterim represents partial transcription results that may change
	SpeechEventInterim SpeechEventType = iota
	// SpeechEventFinal represents final transcription results that won't change
	SpeechEventFinal
	// SpeechEventError represents transcription errors
	SpeechEventError
)

func (t SpeechEventType) String() string {
	switch t {
	case SpeechEventInterim:
		return "interim"
	case SpeechEventFinal:
		return "final"
	case SpeechEventError:
		return "error"
	default:
		return "unknown"
	}
}

// STTCapabilities describes the capabilities of an STT provider.
type STTCapabilities struct {
	Streaming          bool
	InterimResults     bool
	SupportedLanguages []string
	Encodings          []rtc.Encoding
}

// STT is the main interface for speech-to-text providers.
type STT interface {
	// NewStream creates a new streaming STT session.
	NewStream(ctx context.Context, cfg StreamConfig) (STTStream, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() STTCapabilities
}

// STTStream represents an active STT streaming session.
type STTStream interface {
	// Push sends an audio frame for processing.
	Push(frame rtc.AudioFrame) error

	// Events returns a channel of speech recognition events. It is closed
	// once the stream has ended.
	Events() <-chan SpeechEvent

	// CloseSend signals that no more audio will be sent and flushes any pending data.
	CloseSend() error
}
