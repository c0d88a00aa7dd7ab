// Package llm defines chat turns and the streaming interface used to talk to
// translation models.
package llm

import (
	"context"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
)

// LLM-specific error variables for backward compatibility
var (
	// ErrRecoverable indicates a temporary LLM failure that may succeed if retried.
	// Examples: rate limiting, temporary service error, timeout.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent LLM failure that will not succeed if retried.
	// Examples: invalid API key, unsupported model, content policy violation.
	ErrFatal = ai.ErrFatal
)

// MessageRole represents the role of a message in a chat conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is one of the roles a translation request may carry.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single turn in a chat conversation.
type Message struct {
	Role    MessageRole
	Content string
}

// ChatRequest contains parameters for a streaming chat completion request.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float32
}

// ChatStream is an open streaming completion.
type ChatStream interface {
	// Recv returns the next text increment. The increment may be empty for
	// provider frames that carry no text. Recv returns io.EOF once the
	// stream has completed normally.
	Recv() (string, error)

	// Close releases the underlying connection.
	Close() error
}

// LLMCapabilities describes the capabilities of an LLM provider.
type LLMCapabilities struct {
	SupportsStreaming  bool
	MaxTokens          int
	SupportedModels    []string
	SupportsSystemRole bool
}

// StreamingLLM is implemented by providers that can stream chat completions.
type StreamingLLM interface {
	// ChatStream opens a streaming completion. Errors returned here are
	// connection-establishment failures; failures after the stream is open
	// are reported by ChatStream.Recv.
	ChatStream(ctx context.Context, req ChatRequest) (ChatStream, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() LLMCapabilities
}
