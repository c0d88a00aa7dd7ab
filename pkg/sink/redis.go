package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/relay"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix prefixes every subtitle channel and key.
const DefaultRedisPrefix = "subtitles"

// RedisConfig configures a Redis sink.
type RedisConfig struct {
	Prefix string
	Room   string

	// LastTTL keeps the latest final translation under <channel>:last so
	// late subscribers can catch up (0 disables it).
	LastTTL time.Duration
}

// Redis publishes messages on the channel <prefix>:<room>.
type Redis struct {
	rdb     goredis.UniversalClient
	channel string
	lastTTL time.Duration
}

// NewRedis creates a Redis sink. The client is owned by the caller.
func NewRedis(rdb goredis.UniversalClient, cfg RedisConfig) *Redis {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{
		rdb:     rdb,
		channel: prefix + ":" + cfg.Room,
		lastTTL: cfg.LastTTL,
	}
}

func (r *Redis) Name() string { return "redis" }

// Channel returns the pub/sub channel messages are published on.
func (r *Redis) Channel() string { return r.channel }

// Emit publishes msg, and stores it when it is a complete translation.
func (r *Redis) Emit(ctx context.Context, msg relay.Message) error {
	data, err := msg.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}

	if r.lastTTL > 0 && msg.Type == relay.TypeTranslation && msg.IsFinal && !msg.Partial {
		if err := r.rdb.Set(ctx, r.channel+":last", data, r.lastTTL).Err(); err != nil {
			return fmt.Errorf("redis set failed: %w", err)
		}
	}
	return nil
}
