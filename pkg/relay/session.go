package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrSessionClosed is returned when a terminal session is mutated.
var ErrSessionClosed = errors.New("session is no longer streaming")

// State is the lifecycle state of a Session.
type State int32

const (
	StateStreaming State = iota
	StateFinalized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session is one speaker turn's translation into one target language.
// Streaming is the only non-terminal state; Finalized and Failed are absorbing.
type Session struct {
	ID             string
	SourceLanguage string
	TargetLanguage string
	StartedAt      time.Time

	mu     sync.Mutex
	text   strings.Builder
	state  State
	err    error
	chunks int
	lastTS int64

	cancel   context.CancelCauseFunc
	done     chan struct{}
	doneOnce sync.Once
}

// NewSession creates a streaming session.
func NewSession(id, source, target string) *Session {
	return &Session{
		ID:             id,
		SourceLanguage: source,
		TargetLanguage: target,
		StartedAt:      time.Now(),
		state:          StateStreaming,
		cancel:         func(error) {},
		done:           make(chan struct{}),
	}
}

// Append adds delta to the accumulated text and returns the text so far.
func (s *Session) Append(delta string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return s.text.String(), fmt.Errorf("%w: %s is %s", ErrSessionClosed, s.ID, s.state)
	}
	s.text.WriteString(delta)
	s.chunks++
	return s.text.String(), nil
}

// Finalize moves the session to Finalized.
func (s *Session) Finalize() error {
	return s.transition(StateFinalized, nil)
}

// Fail moves the session to Failed, recording err.
func (s *Session) Fail(err error) error {
	return s.transition(StateFailed, err)
}

func (s *Session) transition(to State, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return fmt.Errorf("%w: %s is %s", ErrSessionClosed, s.ID, s.state)
	}
	s.state = to
	s.err = err
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the accumulated text.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Chunks returns how many deltas have been appended.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Err returns the failure cause of a Failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session's relay has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Timestamp returns a Unix-millisecond timestamp for now that is strictly
// greater than any previously returned for this session.
func (s *Session) Timestamp(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now.UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}
