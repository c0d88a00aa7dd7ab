package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chriscow/livekit-translate-go/pkg/translate"
	"github.com/google/uuid"
)

var (
	// ErrRegistryClosed is returned by Begin after Close.
	ErrRegistryClosed = errors.New("session registry is closed")

	// errSuperseded is the cancellation cause of a session replaced by a newer turn.
	errSuperseded = errors.New("superseded by a newer speaker turn")
)

// RegistryStats counts sessions by outcome.
type RegistryStats struct {
	Started   int64
	Finalized int64
	Failed    int64
	Active    int
}

// Registry tracks the sessions of one room worker and serializes them: a new
// session cancels the one still streaming and waits for its relay to return
// before it is handed out.
type Registry struct {
	logger *slog.Logger
	newID  func() string

	mu       sync.Mutex
	current  *Session
	sessions map[string]*Session
	closed   bool

	started   atomic.Int64
	finalized atomic.Int64
	failed    atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
}

// Begin starts a new session. The returned context is cancelled when the
// session is superseded, when ctx is cancelled, or when the registry closes.
// Every session returned by Begin must be released with End.
func (r *Registry) Begin(ctx context.Context, source, target string) (*Session, context.Context, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrRegistryClosed
	}

	prev := r.current
	s := NewSession(r.newID(), source, target)
	sessCtx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	r.current = s
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.started.Add(1)

	if prev != nil {
		select {
		case <-prev.Done():
		default:
			r.logger.Info("Cancelling previous translation session",
				slog.String("session_id", prev.ID),
				slog.String("next_session_id", s.ID))
			prev.cancel(errSuperseded)
			select {
			case <-prev.Done():
			case <-ctx.Done():
				r.End(s)
				return nil, nil, fmt.Errorf("%w: %w", translate.ErrCancelled, context.Cause(ctx))
			}
		}
	}

	r.logger.Debug("Translation session started",
		slog.String("session_id", s.ID),
		slog.String("target_language", target))

	return s, sessCtx, nil
}

// End releases a session. A session still streaming at this point was
// abandoned and is marked Failed.
func (r *Registry) End(s *Session) {
	if s.State() == StateStreaming {
		_ = s.Fail(fmt.Errorf("%w: session abandoned", translate.ErrCancelled))
	}

	switch s.State() {
	case StateFinalized:
		r.finalized.Add(1)
	case StateFailed:
		r.failed.Add(1)
	}

	s.cancel(nil)

	r.mu.Lock()
	delete(r.sessions, s.ID)
	if r.current == s {
		r.current = nil
	}
	r.mu.Unlock()

	s.markDone()

	r.logger.Debug("Translation session ended",
		slog.String("session_id", s.ID),
		slog.String("state", s.State().String()),
		slog.Int("chunks", s.Chunks()))
}

// Current returns the most recently started session that has not ended.
func (r *Registry) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// CancelCurrent cancels the streaming session, if any, with cause. It
// reports whether a session was cancelled. The session still has to be
// released with End by its owner.
func (r *Registry) CancelCurrent(cause error) bool {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()

	if s == nil || s.State() != StateStreaming {
		return false
	}
	s.cancel(cause)
	return true
}

// Active returns how many sessions have begun and not ended.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stats returns session counters.
func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		Started:   r.started.Load(),
		Finalized: r.finalized.Load(),
		Failed:    r.failed.Load(),
		Active:    r.Active(),
	}
}

// Close cancels every live session and waits until each has ended or ctx is
// done. Begin fails after Close.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.cancel(ErrRegistryClosed)
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
