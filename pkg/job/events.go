package job

import (
	"time"

	"github.com/livekit/protocol/livekit"
	"github.com/pion/rtp"
)

// EventType represents the type of room event.
type EventType string

const (
	// EventParticipantConnected is fired when a participant joins the room
	EventParticipantConnected EventType = "participant_connected"

	// EventParticipantDisconnected is fired when a participant leaves the room
	EventParticipantDisconnected EventType = "participant_disconnected"

	// EventTrackSubscribed is fired when a remote track is subscribed
	EventTrackSubscribed EventType = "track_subscribed"

	// EventTrackUnsubscribed is fired when a remote track is unsubscribed
	EventTrackUnsubscribed EventType = "track_unsubscribed"

	// EventDataReceived is fired when data is received from a participant
	EventDataReceived EventType = "data_received"

	// EventDisconnected is fired when the server closes the connection
	EventDisconnected EventType = "disconnected"
)

// AudioTrack is a subscribed remote audio track.
type AudioTrack interface {
	// ReadRTP blocks for the next packet. It fails once the track ends.
	ReadRTP() (*rtp.Packet, error)

	// SetReadDeadline makes a pending and every later ReadRTP fail once t
	// has passed.
	SetReadDeadline(t time.Time) error
}

// Event represents a room event with associated data.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Participant associated with the event (if applicable)
	Participant *livekit.ParticipantInfo

	// Track associated with the event (if applicable)
	Track *livekit.TrackInfo

	// Audio is set on EventTrackSubscribed for audio tracks
	Audio AudioTrack

	// Data payload for data events
	Data []byte
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// WithParticipant adds participant information to the event.
func (e *Event) WithParticipant(participant *livekit.ParticipantInfo) *Event {
	e.Participant = participant
	return e
}

// WithTrack adds track information to the event.
func (e *Event) WithTrack(track *livekit.TrackInfo) *Event {
	e.Track = track
	return e
}

// WithAudio attaches a readable audio track.
func (e *Event) WithAudio(track AudioTrack) *Event {
	e.Audio = track
	return e
}

// WithData adds data payload to the event.
func (e *Event) WithData(data []byte) *Event {
	e.Data = data
	return e
}

// Identity returns the participant identity, or "" when there is none.
func (e *Event) Identity() string {
	if e.Participant == nil {
		return ""
	}
	return e.Participant.Identity
}
