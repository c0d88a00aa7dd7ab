package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/chriscow/livekit-translate-go/internal/config"
	llmfake "github.com/chriscow/livekit-translate-go/pkg/ai/llm/fake"
	"github.com/chriscow/livekit-translate-go/pkg/plugin"
	"github.com/chriscow/livekit-translate-go/pkg/relay"
	"github.com/chriscow/livekit-translate-go/pkg/translate"
)

func testConfig() *config.Config {
	return &config.Config{
		Translation: config.TranslationConfig{
			Provider:       "fake",
			Model:          "test-model",
			Temperature:    0.2,
			MaxTokens:      256,
			MaxRetries:     1,
			RetryBaseDelay: time.Millisecond,
		},
		STT:            config.STTConfig{Provider: "fake"},
		Synthesis:      config.SynthesisConfig{Provider: "fake"},
		Sinks:          config.SinksConfig{QueueSize: 32},
		SourceLanguage: "zh",
		Languages: map[string]config.Language{
			"ja": {Name: "日语", Voice: "alloy"},
			"ko": {Name: "韩语"},
		},
		Rooms: []config.RoomRoute{
			{Prefix: "Pryme-Japanese", Language: "ja"},
			{Prefix: "Pryme-Korean", Language: "ko"},
		},
		Identity: "translator",
	}
}

func decodeLines(t *testing.T, out *bytes.Buffer) []relay.Message {
	t.Helper()
	var msgs []relay.Message
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var m relay.Message
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func TestRunTranslate(t *testing.T) {
	is := is.New(t)

	var out bytes.Buffer
	provider := llmfake.NewFakeLLM("こんにちは、ようこそ。")
	err := runTranslate(context.Background(), testConfig(), provider, "ja", "你好，欢迎。", &out, slog.Default())
	is.NoErr(err)

	msgs := decodeLines(t, &out)
	is.True(len(msgs) > 2) // deltas then a final message

	last := msgs[len(msgs)-1]
	is.True(last.IsFinal)
	is.Equal(last.Text, "こんにちは、ようこそ。")
	is.Equal(last.TargetLanguage, "ja")
	for _, m := range msgs[:len(msgs)-1] {
		is.True(!m.IsFinal) // exactly one final message
	}

	req := provider.Requests()[0]
	is.Equal(req.Messages[len(req.Messages)-1].Content, "你好，欢迎。")
}

func TestRunTranslate_UnknownLanguage(t *testing.T) {
	var out bytes.Buffer
	err := runTranslate(context.Background(), testConfig(), llmfake.NewFakeLLM(), "fr", "你好", &out, slog.Default())
	if err == nil {
		t.Fatal("expected an error for an unconfigured language")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunTranslate_UpstreamUnavailable(t *testing.T) {
	provider := llmfake.NewFakeLLM()
	provider.OpenFailures = 5

	var out bytes.Buffer
	err := runTranslate(context.Background(), testConfig(), provider, "ja", "你好", &out, slog.Default())
	if !errors.Is(err, translate.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want an upstream unavailable error", err)
	}
	if got := provider.Opens(); got != 2 {
		t.Errorf("opens = %d, want 2", got)
	}
}

func TestPrintRooms(t *testing.T) {
	is := is.New(t)

	var out bytes.Buffer
	printRooms(&out, testConfig())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	is.Equal(len(lines), 4) // header, rule and one row per route
	is.True(strings.HasPrefix(lines[2], "Pryme-Japanese"))
	is.True(strings.Contains(lines[2], "日语"))
	is.True(strings.HasSuffix(lines[3], "N/A")) // no voice configured
}

func TestResolveRoom(t *testing.T) {
	is := is.New(t)

	var out bytes.Buffer
	is.NoErr(resolveRoom(&out, testConfig(), "Pryme-Korean-2"))
	is.Equal(out.String(), "ko\t韩语\n")

	err := resolveRoom(&out, testConfig(), "Lobby")
	is.True(errors.Is(err, config.ErrUnknownRoom))
}

func TestListPlugins(t *testing.T) {
	is := is.New(t)

	var out bytes.Buffer
	listPlugins(&out, plugin.KindLLM)

	text := out.String()
	is.True(strings.Contains(text, "groq"))
	is.True(strings.Contains(text, "fake"))
	is.True(!strings.Contains(text, "deepgram")) // filtered by kind

	out.Reset()
	listPlugins(&out, plugin.Kind("vad"))
	is.Equal(out.String(), "No plugins registered for kind: vad\n")
}

func TestBuildProviders(t *testing.T) {
	is := is.New(t)

	cfg := testConfig()
	providers, err := buildProviders(cfg, slog.Default())
	is.NoErr(err)
	is.True(providers.LLM != nil)
	is.True(providers.STT != nil)
	is.True(providers.Synth != nil)

	cfg.Synthesis.Disabled = true
	providers, err = buildProviders(cfg, slog.Default())
	is.NoErr(err)
	is.True(providers.Synth == nil) // speech disabled

	cfg.Translation.Provider = "nope"
	_, err = buildProviders(cfg, slog.Default())
	is.True(errors.Is(err, plugin.ErrNotFound))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
