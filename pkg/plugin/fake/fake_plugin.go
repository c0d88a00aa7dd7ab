// Package fake registers the scripted providers under the name "fake" so the
// worker and CLI can run end to end without network access.
package fake

import (
	"time"

	llmfake "github.com/chriscow/livekit-translate-go/pkg/ai/llm/fake"
	sttfake "github.com/chriscow/livekit-translate-go/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/livekit-translate-go/pkg/ai/tts/fake"
	"github.com/chriscow/livekit-translate-go/pkg/plugin"
)

// newFakeSTT creates a new fake STT provider from configuration.
func newFakeSTT(opts plugin.Options) (any, error) {
	provider := sttfake.NewFakeSTT(opts.Strings("utterances")...)
	provider.FramesPerUtterance = opts.Int("frames_per_utterance", sttfake.DefaultFramesPerUtterance)
	return provider, nil
}

// newFakeTTS creates a new fake TTS provider from configuration.
func newFakeTTS(opts plugin.Options) (any, error) {
	provider := ttsfake.NewFakeTTS()
	provider.Failures = opts.Int("failures", 0)
	return provider, nil
}

// newFakeLLM creates a new fake LLM provider from configuration.
func newFakeLLM(opts plugin.Options) (any, error) {
	provider := llmfake.NewFakeLLM(opts.Strings("responses")...)
	provider.Delay = time.Duration(opts.Int("delay_ms", 0)) * time.Millisecond
	provider.OpenFailures = opts.Int("open_failures", 0)
	return provider, nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "fake",
		Factory:     newFakeSTT,
		Description: "Fake STT provider for testing and development",
		Version:     "1.0.0",
		Config: map[string]any{
			"utterances":           []string{sttfake.DefaultTranscript},
			"frames_per_utterance": sttfake.DefaultFramesPerUtterance,
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Factory:     newFakeTTS,
		Description: "Fake TTS provider for testing and development",
		Version:     "1.0.0",
		Config: map[string]any{
			"failures": 0,
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "fake",
		Factory:     newFakeLLM,
		Description: "Fake LLM provider for testing and development",
		Version:     "1.0.0",
		Config: map[string]any{
			"responses":     []string{"List of predefined translations"},
			"delay_ms":      0,
			"open_failures": 0,
		},
	})
}
