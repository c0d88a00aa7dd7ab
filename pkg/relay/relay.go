package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/translate"
)

// Observer is notified as a relay progresses. Either field may be nil.
type Observer struct {
	OnChunk func(s *Session, text string)
	OnEnd   func(s *Session, err error)
}

// Option configures a Relay.
type Option func(*Relay)

// WithObserver installs an Observer.
func WithObserver(o Observer) Option {
	return func(r *Relay) { r.observer = o }
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// Relay turns a translation chunk stream into sink messages.
type Relay struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time
}

// New creates a Relay that hands messages to d.
func New(d Dispatcher, logger *slog.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes chunks for s until a terminal chunk arrives, the channel
// closes, or ctx is done. Each delta is dispatched as a non-final message
// carrying the text accumulated so far. Exactly one final message is
// dispatched per session; if the stream did not finish it is marked Partial.
func (r *Relay) Run(ctx context.Context, s *Session, chunks <-chan translate.Chunk) (err error) {
	start := time.Now()
	defer func() {
		if r.observer.OnEnd != nil {
			r.observer.OnEnd(s, err)
		}
		r.logger.Debug("Relay finished",
			slog.String("session_id", s.ID),
			slog.String("state", s.State().String()),
			slog.Int("chunks", s.Chunks()),
			slog.Duration("elapsed", time.Since(start)))
	}()

	for {
		select {
		case <-ctx.Done():
			return r.interrupt(s, ended(ctx))

		case c, ok := <-chunks:
			if !ok {
				if ctx.Err() != nil {
					return r.interrupt(s, ended(ctx))
				}
				return r.interrupt(s, fmt.Errorf("%w: stream closed without a final chunk", translate.ErrStreamInterrupted))
			}

			switch c.Kind {
			case translate.ChunkDelta:
				if c.Text == "" {
					continue
				}
				text, err := s.Append(c.Text)
				if err != nil {
					return err
				}
				r.dispatch(s, Message{
					Type:  TypeTranslation,
					Text:  text,
					Chunk: c.Text,
				})
				if r.observer.OnChunk != nil {
					r.observer.OnChunk(s, text)
				}

			case translate.ChunkFinal:
				if err := s.Finalize(); err != nil {
					return err
				}
				r.dispatch(s, Message{
					Type:    TypeTranslation,
					Text:    s.Text(),
					IsFinal: true,
				})
				return nil

			case translate.ChunkInterrupted:
				cause := c.Err
				if cause == nil {
					cause = translate.ErrStreamInterrupted
				}
				if ai.ContextCancelled(ctx) && !errors.Is(cause, translate.ErrCancelled) {
					cause = fmt.Errorf("%w: %w", translate.ErrCancelled, cause)
				}
				return r.interrupt(s, cause)
			}
		}
	}
}

// ended reports why ctx stopped the relay. Only the owner's cancellation is
// ErrCancelled; a deadline interrupts the stream.
func ended(ctx context.Context) error {
	cause := translate.ErrCancelled
	if !ai.ContextCancelled(ctx) {
		cause = translate.ErrStreamInterrupted
	}
	return fmt.Errorf("%w: %w", cause, context.Cause(ctx))
}

func (r *Relay) interrupt(s *Session, cause error) error {
	if err := s.Fail(cause); err != nil {
		return err
	}

	r.dispatch(s, Message{
		Type:    TypeTranslation,
		Text:    s.Text(),
		IsFinal: true,
		Partial: true,
	})

	if errors.Is(cause, translate.ErrCancelled) {
		r.logger.Debug("Translation cancelled",
			slog.String("session_id", s.ID),
			slog.String("cause", cause.Error()))
	} else {
		r.logger.Warn("Translation interrupted",
			slog.String("session_id", s.ID),
			slog.String("error", cause.Error()))
	}
	return cause
}

func (r *Relay) dispatch(s *Session, msg Message) {
	msg.SessionID = s.ID
	msg.SourceLanguage = s.SourceLanguage
	msg.TargetLanguage = s.TargetLanguage
	msg.Timestamp = s.Timestamp(r.now())
	r.dispatcher.Dispatch(msg)
}
