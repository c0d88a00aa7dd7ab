package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/tts"
	"github.com/chriscow/livekit-translate-go/pkg/rtc"
)

// ErrUnavailable is the recoverable error returned for scripted failures.
var ErrUnavailable = errors.New("fake tts unavailable")

// FakeTTS produces a silent-looking Ogg/Opus stream with one 20ms packet per
// rune of text.
type FakeTTS struct {
	// Failures is the number of leading calls that fail with ErrUnavailable.
	Failures int
	// Err, when set, is returned by every call after the scripted failures.
	Err error
	// Delay is applied before each call returns.
	Delay time.Duration

	mu       sync.Mutex
	calls    int
	requests []tts.SynthesizeRequest
}

// NewFakeTTS creates a new fake TTS provider.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{}
}

// Synthesize implements tts.Synthesizer.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (*tts.Audio, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if call <= f.Failures {
		return nil, ai.NewRecoverableError(ErrUnavailable, "fake synthesis failed")
	}
	if f.Err != nil {
		return nil, f.Err
	}

	packets := make([][]byte, 0, len(req.Text))
	for _, r := range req.Text {
		// 0xfc is the TOC byte of a 20ms CELT fullband stereo frame.
		packets = append(packets, []byte{0xfc, byte(r), byte(r >> 8)})
	}
	data, err := rtc.EncodeOggOpus(packets, rtc.DefaultFrameDuration)
	if err != nil {
		return nil, err
	}
	return &tts.Audio{Data: data, Format: tts.FormatOggOpus}, nil
}

// Calls returns how many times Synthesize has been called.
func (f *FakeTTS) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Requests returns every request received.
func (f *FakeTTS) Requests() []tts.SynthesizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.SynthesizeRequest(nil), f.requests...)
}

// Capabilities returns the fake TTS capabilities.
func (f *FakeTTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Formats:              []tts.Format{tts.FormatOggOpus},
		SupportedLanguages:   []string{"ja", "ko", "vi", "ms"},
		SupportedVoices:      []string{"fake-voice-1", "fake-voice-2"},
		SupportsSpeedControl: true,
	}
}
