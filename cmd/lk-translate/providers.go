package main

import (
	"log/slog"

	"github.com/chriscow/livekit-translate-go/internal/config"
	"github.com/chriscow/livekit-translate-go/internal/worker"
	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
	"github.com/chriscow/livekit-translate-go/pkg/ai/tts"
	"github.com/chriscow/livekit-translate-go/pkg/plugin"
)

func newTranslator(cfg *config.Config) (llm.StreamingLLM, error) {
	return plugin.NewLLM(cfg.Translation.Provider, plugin.Options{
		"api_key":  cfg.Translation.APIKey,
		"base_url": cfg.Translation.BaseURL,
		"model":    cfg.Translation.Model,
	})
}

// buildProviders creates the shared AI services named in cfg.
func buildProviders(cfg *config.Config, logger *slog.Logger) (worker.Providers, error) {
	translator, err := newTranslator(cfg)
	if err != nil {
		return worker.Providers{}, err
	}

	transcriber, err := plugin.NewSTT(cfg.STT.Provider, plugin.Options{
		"api_key":  cfg.STT.APIKey,
		"model":    cfg.STT.Model,
		"language": cfg.SourceLanguage,
	})
	if err != nil {
		return worker.Providers{}, err
	}

	providers := worker.Providers{LLM: translator, STT: transcriber}
	if cfg.Synthesis.Disabled {
		logger.Info("Speech synthesis disabled")
		return providers, nil
	}

	synth, err := plugin.NewTTS(cfg.Synthesis.Provider, plugin.Options{
		"api_key": cfg.Synthesis.APIKey,
		"model":   cfg.Synthesis.Model,
	})
	if err != nil {
		return worker.Providers{}, err
	}
	providers.Synth = tts.NewLoggingSynthesizer(synth, logger)

	return providers, nil
}
