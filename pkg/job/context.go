package job

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// NewJobContext creates a new JobContext with the given parent context.
// The context will be cancelled when Shutdown is called.
func NewJobContext(parent context.Context, logger *slog.Logger) *JobContext {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &JobContext{
		Ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Shutdown runs every registered hook concurrently, waits for them for at
// most ShutdownHookTimeout, then cancels Ctx. Only the first call has any
// effect.
func (jc *JobContext) Shutdown(reason string) {
	jc.shutdownMu.Lock()
	if jc.shutdown {
		jc.shutdownMu.Unlock()
		return
	}
	jc.shutdown = true
	hooks := jc.shutdownHooks
	jc.shutdownHooks = nil
	jc.shutdownMu.Unlock()

	jc.logger.Info("Job shutdown initiated", slog.String("reason", reason))

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(h func(string)) {
			defer wg.Done()
			jc.runHook(h, reason)
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		jc.logger.Debug("All shutdown hooks completed")
	case <-time.After(ShutdownHookTimeout):
		jc.logger.Warn("Shutdown hooks timed out", slog.Duration("timeout", ShutdownHookTimeout))
	}

	jc.cancel()
}

// OnShutdown registers a callback to be executed when Shutdown is called.
// If the job has already been shut down, the callback runs immediately in
// its own goroutine.
func (jc *JobContext) OnShutdown(callback func(reason string)) {
	jc.shutdownMu.Lock()
	defer jc.shutdownMu.Unlock()

	if jc.shutdown {
		go jc.runHook(callback, "job already shut down")
		return
	}
	jc.shutdownHooks = append(jc.shutdownHooks, callback)
}

func (jc *JobContext) runHook(h func(string), reason string) {
	defer func() {
		if r := recover(); r != nil {
			jc.logger.Error("Shutdown hook panicked", slog.Any("panic", r))
		}
	}()
	h(reason)
}

// IsShutdown returns true once the job context is cancelled.
func (jc *JobContext) IsShutdown() bool {
	return jc.Ctx.Err() != nil
}

// Done returns a channel that is closed when the job context is cancelled.
func (jc *JobContext) Done() <-chan struct{} {
	return jc.Ctx.Done()
}

// Err returns the error associated with the context cancellation.
func (jc *JobContext) Err() error {
	return jc.Ctx.Err()
}
