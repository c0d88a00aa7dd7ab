// Package rtc holds the encoded audio units exchanged between room tracks,
// transcription sources and speech synthesizers.
package rtc

import (
	"fmt"
	"time"
)

// Opus parameters used on every LiveKit audio track.
const (
	OpusSampleRate = 48000
	OpusChannels   = 2

	// DefaultFrameDuration is the packet duration assumed when a container
	// does not say otherwise.
	DefaultFrameDuration = 20 * time.Millisecond
)

// Encoding identifies what AudioFrame.Data holds.
type Encoding int

const (
	// EncodingOpus is a single raw Opus packet.
	EncodingOpus Encoding = iota
	// EncodingOgg is a run of Ogg pages carrying Opus.
	EncodingOgg
)

func (e Encoding) String() string {
	switch e {
	case EncodingOpus:
		return "opus"
	case EncodingOgg:
		return "ogg"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// AudioFrame is a unit of encoded audio.
// Duration is set for EncodingOpus frames; container bytes leave it zero.
type AudioFrame struct {
	Data        []byte
	Encoding    Encoding
	SampleRate  int
	NumChannels int
	Duration    time.Duration
	Timestamp   time.Duration // offset from the start of the stream
}

// NewOpusFrame creates a frame holding one Opus packet.
func NewOpusFrame(packet []byte, duration, timestamp time.Duration) (*AudioFrame, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("opus frame is empty")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("opus frame duration must be positive, got %s", duration)
	}
	return &AudioFrame{
		Data:        packet,
		Encoding:    EncodingOpus,
		SampleRate:  OpusSampleRate,
		NumChannels: OpusChannels,
		Duration:    duration,
		Timestamp:   timestamp,
	}, nil
}

// Clone creates a deep copy of the AudioFrame.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	c := *f
	c.Data = data
	return &c
}
