// Package tts defines speech synthesizers and the wrappers composed around
// them: retry with linear backoff and debug logging.
package tts

import (
	"context"
	"errors"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
)

// TTS-specific error variables for backward compatibility
var (
	// ErrRecoverable indicates a temporary TTS failure that may succeed if retried.
	// Examples: service overload, temporary quota exceeded, network issues.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent TTS failure that will not succeed if retried.
	// Examples: invalid voice ID, unsupported text format, permanent quota exceeded.
	ErrFatal = ai.ErrFatal

	// ErrEmptyText is returned without contacting the provider when the
	// request text is blank.
	ErrEmptyText = errors.New("text to synthesize is empty")
)

// Format is the container/codec of synthesized audio.
type Format string

const (
	FormatOggOpus Format = "ogg_opus"
	FormatMP3     Format = "mp3"
	FormatPCM     Format = "pcm"
)

// SynthesizeRequest contains parameters for text-to-speech synthesis.
type SynthesizeRequest struct {
	Text     string
	Voice    string
	Language string
	Speed    float32
}

// Audio is a complete synthesized utterance.
type Audio struct {
	Data   []byte
	Format Format
}

// TTSCapabilities describes the capabilities of a TTS provider.
type TTSCapabilities struct {
	Formats              []Format
	SupportedLanguages   []string
	SupportedVoices      []string
	SupportsSpeedControl bool
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize returns the audio for req.Text.
	Synthesize(ctx context.Context, req SynthesizeRequest) (*Audio, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() TTSCapabilities
}
