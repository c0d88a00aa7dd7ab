package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// New creates a Job for a room. A Timeout bounds the job's context.
func New(parentCtx context.Context, cfg Config) (*Job, error) {
	if cfg.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobID := cfg.ID
	if jobID == "" {
		jobID = "job_" + uuid.NewString()
	}

	ctx, stop := parentCtx, context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		ctx, stop = context.WithTimeout(parentCtx, cfg.Timeout)
	}

	logger = logger.With(slog.String("job_id", jobID), slog.String("room", cfg.RoomName))
	j := &Job{
		ID:       jobID,
		RoomName: cfg.RoomName,
		Language: cfg.Language,
		Context:  NewJobContext(ctx, logger),
	}
	j.Context.OnShutdown(func(string) { stop() })

	logger.Info("Created new job",
		slog.String("language", cfg.Language),
		slog.Duration("timeout", cfg.Timeout))

	return j, nil
}

// Shutdown gracefully shuts down the job with the given reason.
func (j *Job) Shutdown(reason string) {
	j.Context.Shutdown(reason)
}

// Wait blocks until the job context is cancelled.
// Returns the context error (context.Canceled or context.DeadlineExceeded).
func (j *Job) Wait() error {
	<-j.Context.Done()
	return j.Context.Err()
}

// IsActive returns true if the job is still running (not shut down).
func (j *Job) IsActive() bool {
	return !j.Context.IsShutdown()
}

// String returns a string representation of the job for logging.
func (j *Job) String() string {
	status := "active"
	if j.Context.IsShutdown() {
		status = "shutdown"
	}
	return fmt.Sprintf("Job{ID: %s, Room: %s, Language: %s, Status: %s}", j.ID, j.RoomName, j.Language, status)
}
