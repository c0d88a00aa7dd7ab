// Package relay fans streamed translations out to subtitle and speech sinks.
//
// A Session holds the text accumulated for one speaker turn. The Relay is the
// only writer of a session's text: it consumes the chunk stream produced by
// translate.Driver and dispatches one Message per chunk to every Sink through
// a Dispatcher. The Registry serializes sessions within one room worker.
package relay

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of outbound message.
type MessageType string

const (
	// TypeTranslation carries translated text for a session.
	TypeTranslation MessageType = "translation"
	// TypeTranscript carries source-language captions, bypassing translation.
	TypeTranscript MessageType = "transcript"
	// TypeStatus carries a room-level status notification.
	TypeStatus MessageType = "status"
)

// Status values carried by TypeStatus messages.
const (
	StatusUpstreamUnavailable = "upstream_unavailable"
	StatusSynthesisFailed     = "synthesis_failed"
	StatusTranslationStopped  = "translation_stopped"
	StatusTranslationStarted  = "translation_started"
)

// Message is the structured payload delivered to sinks.
type Message struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"sessionId,omitempty"`
	Text           string      `json:"text"`
	Chunk          string      `json:"chunk"`
	SourceLanguage string      `json:"sourceLanguage"`
	TargetLanguage string      `json:"targetLanguage"`
	IsFinal        bool        `json:"isFinal"`
	Timestamp      int64       `json:"timestamp"`

	// Partial marks a final message closing an interrupted session.
	Partial bool `json:"partial,omitempty"`

	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// JSON encodes m for the wire.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// NewStatus builds a status notification for a room.
func NewStatus(status string, err error, source, target string, now time.Time) Message {
	msg := Message{
		Type:           TypeStatus,
		Status:         status,
		SourceLanguage: source,
		TargetLanguage: target,
		IsFinal:        true,
		Timestamp:      now.UnixMilli(),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// NewTranscript builds a caption message for source-language text.
func NewTranscript(text string, isFinal bool, source, target string, now time.Time) Message {
	return Message{
		Type:           TypeTranscript,
		Text:           text,
		SourceLanguage: source,
		TargetLanguage: target,
		IsFinal:        isFinal,
		Timestamp:      now.UnixMilli(),
	}
}
