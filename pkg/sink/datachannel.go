package sink

import (
	"context"
	"fmt"

	"github.com/chriscow/livekit-translate-go/pkg/relay"
)

// DataChannel broadcasts messages as JSON on the room's reliable data channel.
type DataChannel struct {
	room DataPublisher
}

// NewDataChannel creates a sink publishing through room.
func NewDataChannel(room DataPublisher) *DataChannel {
	return &DataChannel{room: room}
}

func (d *DataChannel) Name() string { return "datachannel" }

// Emit publishes msg.
func (d *DataChannel) Emit(ctx context.Context, msg relay.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := msg.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return d.room.PublishData(data)
}
