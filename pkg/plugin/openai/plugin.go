package openai

import (
	"fmt"
	"os"

	"github.com/chriscow/livekit-translate-go/pkg/plugin"
)

func apiKey(opts plugin.Options, env string) (string, error) {
	key := opts.String("api_key", os.Getenv(env))
	if key == "" {
		return "", fmt.Errorf("API key is required (set %s environment variable or provide api_key in config)", env)
	}
	return key, nil
}

// newOpenAILLM is the factory function for OpenAI chat.
func newOpenAILLM(opts plugin.Options) (any, error) {
	key, err := apiKey(opts, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return NewOpenAILLM(Config{
		APIKey:  key,
		BaseURL: opts.String("base_url", ""),
		Model:   opts.String("model", ""),
	})
}

// newGroqLLM is the factory function for Groq chat.
func newGroqLLM(opts plugin.Options) (any, error) {
	key, err := apiKey(opts, "GROQ_API_KEY")
	if err != nil {
		return nil, err
	}
	return NewOpenAILLM(Config{
		APIKey:  key,
		BaseURL: opts.String("base_url", GroqBaseURL),
		Model:   opts.String("model", "llama3-8b-8192"),
	})
}

// newOpenAITTS is the factory function for OpenAI speech.
func newOpenAITTS(opts plugin.Options) (any, error) {
	key, err := apiKey(opts, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return NewOpenAITTS(Config{
		APIKey:  key,
		BaseURL: opts.String("base_url", ""),
		Model:   opts.String("model", ""),
		Voice:   opts.String("voice", ""),
	})
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "openai",
		Factory:     newOpenAILLM,
		Description: "OpenAI streaming chat completion",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "OpenAI API key (or set OPENAI_API_KEY env var)",
			"base_url": "OpenAI-compatible endpoint (optional)",
			"model":    "gpt-4o-mini",
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "groq",
		Factory:     newGroqLLM,
		Description: "Groq streaming chat completion (OpenAI-compatible)",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "Groq API key (or set GROQ_API_KEY env var)",
			"model":   "llama3-8b-8192",
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "openai",
		Factory:     newOpenAITTS,
		Description: "OpenAI text-to-speech, Ogg/Opus output",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":   "tts-1",
			"voice":   "alloy",
		},
	})
}
