package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultGreeting is translated and voiced when a worker joins a room.
const DefaultGreeting = "大家好，我是实时翻译助手，接下来将为您同步翻译。"

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_language", "zh")
	v.SetDefault("identity", "translator")
	v.SetDefault("greeting", DefaultGreeting)
	v.SetDefault("history_size", 6)
	v.SetDefault("forward_transcripts", false)

	v.SetDefault("livekit.url", "")
	v.SetDefault("livekit.api_key", "")
	v.SetDefault("livekit.api_secret", "")

	v.SetDefault("translation.provider", "groq")
	v.SetDefault("translation.model", "llama3-8b-8192")
	v.SetDefault("translation.api_key", "")
	v.SetDefault("translation.base_url", "")
	v.SetDefault("translation.temperature", 0.2)
	v.SetDefault("translation.max_tokens", 2048)
	v.SetDefault("translation.max_retries", 2)
	v.SetDefault("translation.retry_base_delay", 500*time.Millisecond)

	v.SetDefault("synthesis.provider", "openai")
	v.SetDefault("synthesis.model", "")
	v.SetDefault("synthesis.api_key", "")
	v.SetDefault("synthesis.max_retries", 2)
	v.SetDefault("synthesis.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("synthesis.disabled", false)

	v.SetDefault("stt.provider", "deepgram")
	v.SetDefault("stt.model", "nova-3")
	v.SetDefault("stt.api_key", "")
	v.SetDefault("stt.interim_results", true)
	v.SetDefault("stt.max_retries", 2)
	v.SetDefault("stt.retry_base_delay", 500*time.Millisecond)

	v.SetDefault("sinks.queue_size", 256)
	v.SetDefault("sinks.emit_timeout", 10*time.Second)
	v.SetDefault("sinks.data_channel", true)
	v.SetDefault("sinks.websocket_url", "")
	v.SetDefault("sinks.websocket_token", "")
	v.SetDefault("sinks.redis_addr", "")
	v.SetDefault("sinks.redis_prefix", "subtitles")
	v.SetDefault("sinks.redis_last_ttl", 10*time.Minute)

	v.SetDefault("telemetry.service_name", "lk-translate")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.metrics_addr", "")

	v.SetDefault("languages", map[string]any{
		"ja": map[string]any{"name": "日语", "voice": "alloy"},
		"ko": map[string]any{"name": "韩语", "voice": "nova"},
		"vi": map[string]any{"name": "越南语", "voice": "shimmer"},
		"ms": map[string]any{"name": "马来语", "voice": "echo"},
	})

	v.SetDefault("rooms", []any{
		map[string]any{"prefix": "Pryme-Japanese", "language": "ja"},
		map[string]any{"prefix": "Pryme-Korean", "language": "ko"},
		map[string]any{"prefix": "Pryme-Vietnamese", "language": "vi"},
		map[string]any{"prefix": "Pryme-Malay", "language": "ms"},
	})
}
