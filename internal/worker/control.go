package worker

import (
	"encoding/json"
)

// Control message types accepted on the room data channel.
const (
	ControlPing  = "ping"
	ControlPong  = "pong"
	ControlStart = "start"
	ControlStop  = "stop"
)

// Control is a command sent by a room participant.
type Control struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// parseControl decodes a data packet. Packets that are not JSON objects
// with a known control type are ignored.
func parseControl(data []byte) (*Control, bool) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, false
	}
	switch c.Type {
	case ControlPing, ControlStart, ControlStop:
		return &c, true
	}
	return nil, false
}
