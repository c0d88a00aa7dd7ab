package job

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// DefaultTokenTTL is the lifetime of a worker join token.
const DefaultTokenTTL = 6 * time.Hour

// NewJoinToken signs a token that lets identity join room.
func NewJoinToken(apiKey, apiSecret, room, identity string, ttl time.Duration) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", fmt.Errorf("API key and secret are required")
	}
	if room == "" || identity == "" {
		return "", fmt.Errorf("room and identity are required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	at := auth.NewAccessToken(apiKey, apiSecret)
	at.AddGrant(&auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}).
		SetIdentity(identity).
		SetName(identity).
		SetValidFor(ttl)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("failed to sign join token: %w", err)
	}
	return token, nil
}
