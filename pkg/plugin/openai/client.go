// Package openai provides translation and speech providers backed by the
// OpenAI API and OpenAI-compatible endpoints such as Groq.
package openai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	openai "github.com/sashabaranov/go-openai"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Config holds configuration shared by the OpenAI providers.
type Config struct {
	APIKey  string
	BaseURL string // empty for api.openai.com
	Model   string
	Voice   string
}

func newClient(cfg Config) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// classify marks errors that retrying cannot fix as fatal and everything
// else as recoverable.
func classify(err error, msg string) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return ai.NewFatalError(err, fmt.Sprintf("%s (HTTP %d)", msg, status))
	}
	return ai.NewRecoverableError(err, msg)
}
