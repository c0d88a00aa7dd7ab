// Package translate turns conversation history into translation requests and
// drives streaming translations against a language model.
package translate

import (
	"errors"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
)

var (
	// ErrInvalidInput reports a request that can never succeed, such as an
	// empty turn sequence or an unsupported target language. Not retried.
	ErrInvalidInput = errors.New("invalid translation input")

	// ErrUpstreamUnavailable reports that the translation provider could not
	// be reached at stream-open time after all retries.
	ErrUpstreamUnavailable = errors.New("translation provider unavailable")

	// ErrStreamInterrupted reports that the provider dropped the stream
	// after it was opened. Partial text may already have been relayed.
	ErrStreamInterrupted = errors.New("translation stream interrupted")

	// ErrSynthesisFailed reports that speech synthesis failed after all retries.
	ErrSynthesisFailed = errors.New("speech synthesis failed")

	// ErrSinkDispatchFailed reports that a single sink rejected a message.
	ErrSinkDispatchFailed = errors.New("sink dispatch failed")

	// ErrCancelled reports that the owner cancelled the work.
	ErrCancelled = ai.ErrCancelled
)
