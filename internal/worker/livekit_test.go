package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/chriscow/livekit-translate-go/internal/config"
	"github.com/chriscow/livekit-translate-go/pkg/ai"
)

func testConfig() *config.Config {
	return &config.Config{
		Translation: config.TranslationConfig{
			Model:          "llama3-8b-8192",
			Temperature:    0.2,
			MaxTokens:      2048,
			MaxRetries:     2,
			RetryBaseDelay: 500 * time.Millisecond,
		},
		Synthesis:      config.SynthesisConfig{MaxRetries: 1, RetryBaseDelay: time.Second},
		STT:            config.STTConfig{Model: "nova-3", InterimResults: true, MaxRetries: 3, RetryBaseDelay: 250 * time.Millisecond},
		Sinks:          config.SinksConfig{QueueSize: 128, EmitTimeout: 5 * time.Second, DataChannel: true},
		SourceLanguage: "zh",
		Languages: map[string]config.Language{
			"ja": {Name: "日语", Voice: "alloy"},
			"ko": {Name: "韩语", Voice: "nova"},
		},
		Rooms: []config.RoomRoute{
			{Prefix: "Pryme-Japanese", Language: "ja"},
			{Prefix: "Pryme-Korean", Language: "ko"},
		},
		Identity:    "translator",
		Greeting:    "大家好",
		HistorySize: 6,
	}
}

func TestLauncher_Assignments(t *testing.T) {
	is := is.New(t)

	l := NewLauncher(testConfig(), Providers{}, nil, nil, nil)

	got, err := l.Assignments([]string{"Pryme-Korean", "Pryme-Japanese-2"})
	is.NoErr(err)
	is.Equal(got, []Assignment{
		{Room: "Pryme-Korean", Language: "ko"},
		{Room: "Pryme-Japanese-2", Language: "ja"},
	})

	_, err = l.Assignments([]string{"Lobby"})
	is.True(errors.Is(err, config.ErrUnknownRoom))
}

func TestLauncher_RoomConfig(t *testing.T) {
	is := is.New(t)

	l := NewLauncher(testConfig(), Providers{}, nil, nil, nil)

	rc, err := l.RoomConfig("Pryme-Japanese", "ja")
	is.NoErr(err)
	is.Equal(rc.Room, "Pryme-Japanese")
	is.Equal(rc.Source.Code, "zh")
	is.Equal(rc.Source.Name, "中文")
	is.Equal(rc.Target.Name, "日语")
	is.Equal(rc.Target.Voice, "alloy")
	is.Equal(rc.Driver.Model, "llama3-8b-8192")
	is.Equal(rc.Driver.MaxTokens, 2048)
	is.Equal(rc.Driver.Retry.MaxRetries, 2)
	is.Equal(rc.Driver.Languages, []string{"ja", "ko"})
	is.Equal(rc.SynthesisRetry.BaseDelay, time.Second)
	is.Equal(rc.Fanout.QueueSize, 128)
	is.Equal(rc.HistorySize, 6)
	is.Equal(rc.Greeting, "大家好")
	is.Equal(rc.STTModel, "nova-3")
	is.True(rc.InterimResults)
	is.Equal(rc.STTRetry, ai.RetryConfig{MaxRetries: 3, BaseDelay: 250 * time.Millisecond})
	is.True(rc.DataChannel)

	_, err = l.RoomConfig("Pryme-French", "fr")
	is.True(err != nil) // unknown language
}

func TestLauncher_SinksFromConfig(t *testing.T) {
	is := is.New(t)

	cfg := testConfig()
	cfg.Sinks.WebSocketURL = "ws://127.0.0.1:1/subtitles"
	l := NewLauncher(cfg, Providers{}, nil, nil, nil)

	sinks, closeSinks := l.sinks("Pryme-Japanese", l.logger)
	defer closeSinks()
	is.Equal(len(sinks), 1)
	is.Equal(sinks[0].Name(), "websocket")
}
