package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/translate"
)

// ErrFanoutClosed is returned by Flush after Close.
var ErrFanoutClosed = errors.New("fanout is closed")

// DefaultFinalWait bounds how long Dispatch waits on a full queue for a final
// or status message when no EmitTimeout is configured.
const DefaultFinalWait = 5 * time.Second

// Sink receives relay messages. Emit may block; the Fanout calls each sink
// from its own goroutine.
type Sink interface {
	Name() string
	Emit(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	ID string
	Fn func(ctx context.Context, msg Message) error
}

func (f SinkFunc) Name() string                                { return f.ID }
func (f SinkFunc) Emit(ctx context.Context, msg Message) error { return f.Fn(ctx, msg) }

// Interruptible cancels every Emit of s once ctx ends, including one already
// in progress. Messages still queued for s fail fast with ErrCancelled.
func Interruptible(ctx context.Context, s Sink) Sink {
	return interruptible{Sink: s, ctx: ctx}
}

type interruptible struct {
	Sink
	ctx context.Context
}

func (i interruptible) Emit(ctx context.Context, msg Message) error {
	if i.ctx.Err() != nil {
		return fmt.Errorf("%w: %w", translate.ErrCancelled, context.Cause(i.ctx))
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(i.ctx, func() { cancel(context.Cause(i.ctx)) })
	defer stop()

	return i.Sink.Emit(ctx, msg)
}

// Dispatcher accepts messages for delivery without blocking the caller.
type Dispatcher interface {
	Dispatch(msg Message)
}

// FanoutConfig configures a Fanout.
type FanoutConfig struct {
	// QueueSize bounds the per-sink backlog. A full queue drops new interim
	// messages for that sink only.
	QueueSize int

	// FinalWait bounds how long Dispatch blocks on a full queue for a final
	// or status message before dropping it (0 = EmitTimeout, or
	// DefaultFinalWait).
	FinalWait time.Duration

	// EmitTimeout bounds a single Emit call (0 = no bound).
	EmitTimeout time.Duration

	// OnFailure is called for every dropped or rejected message.
	OnFailure func(sink string, err error)
}

type item struct {
	msg Message
	ack chan struct{}
}

type sinkQueue struct {
	sink Sink
	ch   chan item
}

// Fanout delivers every dispatched message to every sink. Each sink has its
// own ordered queue and goroutine, so a slow or failing sink never delays or
// breaks delivery to the others.
type Fanout struct {
	cfg    FanoutConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	queues []*sinkQueue
	closed bool
}

// NewFanout starts one delivery goroutine per sink. ctx bounds every Emit.
func NewFanout(ctx context.Context, cfg FanoutConfig, logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.FinalWait <= 0 {
		cfg.FinalWait = cfg.EmitTimeout
	}
	if cfg.FinalWait <= 0 {
		cfg.FinalWait = DefaultFinalWait
	}

	fctx, cancel := context.WithCancel(ctx)
	f := &Fanout{
		cfg:    cfg,
		logger: logger,
		ctx:    fctx,
		cancel: cancel,
	}

	for _, s := range sinks {
		q := &sinkQueue{sink: s, ch: make(chan item, cfg.QueueSize)}
		f.queues = append(f.queues, q)
		f.wg.Add(1)
		go f.run(q)
	}
	return f
}

// Sinks returns the names of the registered sinks.
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.queues))
	for i, q := range f.queues {
		names[i] = q.sink.Name()
	}
	return names
}

// Dispatch enqueues msg for every sink. Interim messages never block: a full
// queue drops them. Final and status messages wait up to FinalWait for room.
func (f *Fanout) Dispatch(msg Message) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		f.logger.Warn("Dropping message, fanout closed",
			slog.String("type", string(msg.Type)),
			slog.String("session_id", msg.SessionID))
		return
	}

	for _, q := range f.queues {
		select {
		case q.ch <- item{msg: msg}:
			continue
		default:
		}

		if terminal(msg) {
			timer := time.NewTimer(f.cfg.FinalWait)
			select {
			case q.ch <- item{msg: msg}:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}
		f.failure(q.sink.Name(), fmt.Errorf("%w: %s: queue full, message dropped", translate.ErrSinkDispatchFailed, q.sink.Name()))
	}
}

// terminal reports whether msg closes a session or announces a room status.
func terminal(msg Message) bool {
	return msg.IsFinal || msg.Type == TypeStatus
}

// Flush blocks until every message dispatched before the call has been
// handed to its sink.
func (f *Fanout) Flush(ctx context.Context) error {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return ErrFanoutClosed
	}
	acks := make([]chan struct{}, 0, len(f.queues))
	for _, q := range f.queues {
		ack := make(chan struct{})
		select {
		case q.ch <- item{ack: ack}:
			acks = append(acks, ack)
		case <-ctx.Done():
			f.mu.RUnlock()
			return ctx.Err()
		}
	}
	f.mu.RUnlock()

	for _, ack := range acks {
		select {
		case <-ack:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting messages, drains every queue, then returns.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, q := range f.queues {
		close(q.ch)
	}
	f.mu.Unlock()

	f.wg.Wait()
	f.cancel()
}

func (f *Fanout) run(q *sinkQueue) {
	defer f.wg.Done()
	for it := range q.ch {
		if it.ack != nil {
			close(it.ack)
			continue
		}
		f.emit(q.sink, it.msg)
	}
}

func (f *Fanout) emit(sink Sink, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			f.failure(sink.Name(), fmt.Errorf("%w: %s panicked: %v", translate.ErrSinkDispatchFailed, sink.Name(), r))
		}
	}()

	ctx := f.ctx
	if f.cfg.EmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.EmitTimeout)
		defer cancel()
	}

	if err := sink.Emit(ctx, msg); err != nil {
		if errors.Is(err, translate.ErrCancelled) {
			f.logger.Debug("Sink emit cancelled",
				slog.String("sink", sink.Name()),
				slog.String("session_id", msg.SessionID))
			return
		}
		f.failure(sink.Name(), fmt.Errorf("%w: %s: %w", translate.ErrSinkDispatchFailed, sink.Name(), err))
	}
}

func (f *Fanout) failure(sink string, err error) {
	f.logger.Warn("Sink dispatch failed",
		slog.String("sink", sink),
		slog.String("error", err.Error()))
	if f.cfg.OnFailure != nil {
		f.cfg.OnFailure(sink, err)
	}
}
