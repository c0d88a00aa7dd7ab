// Package config loads the translation worker's settings from an optional
// YAML file, an optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/translate"
)

// ErrUnknownRoom is returned when no room route matches a room name.
var ErrUnknownRoom = errors.New("room does not map to a language")

// Config is the complete worker configuration.
type Config struct {
	// LiveKit is checked by ValidateLiveKit only, so offline commands can
	// run without server credentials.
	LiveKit LiveKitConfig `mapstructure:"livekit" validate:"-"`

	Translation TranslationConfig `mapstructure:"translation"`
	Synthesis   SynthesisConfig   `mapstructure:"synthesis"`
	STT         STTConfig         `mapstructure:"stt"`
	Sinks       SinksConfig       `mapstructure:"sinks"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`

	// SourceLanguage is the language spoken in every room.
	SourceLanguage string `mapstructure:"source_language" validate:"required"`

	Languages map[string]Language `mapstructure:"languages" validate:"required,min=1,dive"`
	Rooms     []RoomRoute         `mapstructure:"rooms" validate:"required,min=1,dive"`

	// Identity prefixes the worker's participant identity.
	Identity string `mapstructure:"identity" validate:"required"`

	// Greeting is translated and voiced when a worker joins ("" disables).
	Greeting string `mapstructure:"greeting"`

	// HistorySize bounds the prior transcripts sent as context.
	HistorySize int `mapstructure:"history_size" validate:"gte=0"`

	// ForwardTranscripts relays source captions to subtitle sinks.
	ForwardTranscripts bool `mapstructure:"forward_transcripts"`
}

// LiveKitConfig holds server credentials.
type LiveKitConfig struct {
	URL       string `mapstructure:"url" validate:"required,url"`
	APIKey    string `mapstructure:"api_key" validate:"required"`
	APISecret string `mapstructure:"api_secret" validate:"required"`
}

// TranslationConfig configures the streaming translation provider.
type TranslationConfig struct {
	Provider string `mapstructure:"provider" validate:"required"`
	Model    string `mapstructure:"model" validate:"required"`
	APIKey   string `mapstructure:"api_key" validate:"required_unless=Provider fake"`
	BaseURL  string `mapstructure:"base_url" validate:"omitempty,url"`
	// Temperature must be positive: the chat API client omits a zero value
	// and the provider would fall back to its own default.
	Temperature    float32       `mapstructure:"temperature" validate:"gt=0,lte=2"`
	MaxTokens      int           `mapstructure:"max_tokens" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"gte=0"`
}

// SynthesisConfig configures speech synthesis.
type SynthesisConfig struct {
	Provider       string        `mapstructure:"provider" validate:"required"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key" validate:"required_if=Provider openai"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"gte=0"`
	Disabled       bool          `mapstructure:"disabled"`
}

// STTConfig configures the transcription source.
type STTConfig struct {
	Provider       string `mapstructure:"provider" validate:"required"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key" validate:"required_unless=Provider fake"`
	InterimResults bool   `mapstructure:"interim_results"`

	// MaxRetries and RetryBaseDelay govern reopening a speaker's stream.
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"gte=0"`
}

// SinksConfig selects and tunes the subtitle sinks.
type SinksConfig struct {
	QueueSize   int           `mapstructure:"queue_size" validate:"gt=0"`
	EmitTimeout time.Duration `mapstructure:"emit_timeout" validate:"gte=0"`

	DataChannel bool `mapstructure:"data_channel"`

	WebSocketURL   string `mapstructure:"websocket_url" validate:"omitempty,url"`
	WebSocketToken string `mapstructure:"websocket_token"`

	RedisAddr    string        `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPrefix  string        `mapstructure:"redis_prefix"`
	RedisLastTTL time.Duration `mapstructure:"redis_last_ttl" validate:"gte=0"`
}

// TelemetryConfig configures metrics export.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
}

// Language is a supported target language.
type Language struct {
	Name  string `mapstructure:"name" validate:"required"`
	Voice string `mapstructure:"voice"`
}

// RoomRoute maps rooms whose name starts with Prefix to a language.
type RoomRoute struct {
	Prefix   string `mapstructure:"prefix" validate:"required"`
	Language string `mapstructure:"language" validate:"required"`
}

// ResolveRoom returns the target language for a room. Routes are tried in
// order and the first matching prefix wins.
func (c *Config) ResolveRoom(room string) (string, error) {
	for _, r := range c.Rooms {
		if strings.HasPrefix(room, r.Prefix) {
			return r.Language, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRoom, room)
}

// SupportedLanguages returns the configured target codes, sorted.
func (c *Config) SupportedLanguages() []string {
	codes := make([]string, 0, len(c.Languages))
	for code := range c.Languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Target returns the translate.Language for a configured code.
func (c *Config) Target(code string) (translate.Language, bool) {
	l, ok := c.Languages[code]
	if !ok {
		return translate.Language{}, false
	}
	return translate.Language{Code: code, Name: l.Name, Voice: l.Voice}, true
}

// Source returns the source language.
func (c *Config) Source() translate.Language {
	if name, ok := sourceNames[c.SourceLanguage]; ok {
		return translate.Language{Code: c.SourceLanguage, Name: name}
	}
	return translate.Language{Code: c.SourceLanguage}
}

// Voices maps each language code to its voice.
func (c *Config) Voices() map[string]string {
	voices := make(map[string]string, len(c.Languages))
	for code, l := range c.Languages {
		voices[code] = l.Voice
	}
	return voices
}

var sourceNames = map[string]string{
	"zh": "中文",
	"en": "English",
}
