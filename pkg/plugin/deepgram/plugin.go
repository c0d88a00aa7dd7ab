package deepgram

import (
	"fmt"
	"os"

	"github.com/chriscow/livekit-translate-go/pkg/plugin"
)

func newDeepgramSTT(opts plugin.Options) (any, error) {
	key := opts.String("api_key", os.Getenv("DEEPGRAM_API_KEY"))
	if key == "" {
		return nil, fmt.Errorf("Deepgram API key is required (set DEEPGRAM_API_KEY environment variable or provide api_key in config)")
	}
	return New(Config{
		APIKey:   key,
		Endpoint: opts.String("endpoint", DefaultEndpoint),
		Model:    opts.String("model", DefaultModel),
		Language: opts.String("language", ""),
	})
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "deepgram",
		Factory:     newDeepgramSTT,
		Description: "Deepgram live streaming transcription",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "Deepgram API key (or set DEEPGRAM_API_KEY env var)",
			"model":    DefaultModel,
			"language": "zh",
		},
	})
}
