package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps the deployment's conventional variable names to keys.
var envBindings = map[string]string{
	"livekit.url":         "LIVEKIT_URL",
	"livekit.api_key":     "LIVEKIT_API_KEY",
	"livekit.api_secret":  "LIVEKIT_API_SECRET",
	"translation.api_key": "GROQ_API_KEY",
	"stt.api_key":         "DEEPGRAM_API_KEY",
	"synthesis.api_key":   "OPENAI_API_KEY",
}

// LoaderConfig holds optional file overrides.
type LoaderConfig struct {
	ConfigFile string // YAML config file (optional)
	EnvFile    string // .env file (optional, "./.env" is tried when empty)

	// Overrides win over every other source. Keys use dotted paths such as
	// "translation.provider".
	Overrides map[string]any
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithOverride sets key regardless of the file and environment.
func WithOverride(key string, value any) LoaderOption {
	return func(lc *LoaderConfig) {
		if lc.Overrides == nil {
			lc.Overrides = make(map[string]any)
		}
		lc.Overrides[key] = value
	}
}

// Load reads defaults, then the config file, then the .env file and the
// environment, and validates the result. LiveKit credentials are not
// validated here; see ValidateLiveKit.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	v := viper.New()
	setDefaults(v)

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", lc.ConfigFile, err)
		}
	}

	// Variables already set in the environment win over the .env file.
	envFile := lc.EnvFile
	if envFile == "" && exists(".env") {
		envFile = ".env"
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	for key, value := range lc.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything but the LiveKit credentials.
func (c *Config) Validate() error {
	if err := validate(c); err != nil {
		return err
	}
	for _, r := range c.Rooms {
		if _, ok := c.Languages[r.Language]; !ok {
			return fmt.Errorf("invalid config: room prefix %q maps to unsupported language %q", r.Prefix, r.Language)
		}
	}
	if _, ok := c.Languages[c.SourceLanguage]; ok {
		return fmt.Errorf("invalid config: source language %q is also a target", c.SourceLanguage)
	}
	return nil
}

// ValidateLiveKit checks the LiveKit server credentials.
func (c *Config) ValidateLiveKit() error {
	return validate(&c.LiveKit)
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func validate(s any) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
