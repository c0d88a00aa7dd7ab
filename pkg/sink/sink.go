// Package sink holds the outbound destinations of relay messages: the
// LiveKit data channel, a WebSocket subtitle gateway, Redis pub/sub, plain
// writers and the speech synthesizer.
package sink

import (
	"context"

	"github.com/chriscow/livekit-translate-go/pkg/relay"
	"github.com/chriscow/livekit-translate-go/pkg/rtc"
)

// DataPublisher sends a payload to every participant of a room.
type DataPublisher interface {
	PublishData(data []byte) error
}

// AudioPublisher plays encoded frames into a room.
type AudioPublisher interface {
	PublishAudio(ctx context.Context, frames []rtc.AudioFrame) error
}

// Notifier accepts room-level status notifications.
type Notifier interface {
	Dispatch(msg relay.Message)
}

var (
	_ relay.Sink = (*DataChannel)(nil)
	_ relay.Sink = (*WebSocket)(nil)
	_ relay.Sink = (*Redis)(nil)
	_ relay.Sink = (*Writer)(nil)
	_ relay.Sink = (*Speech)(nil)
)
