// Package job holds the lifecycle of one room translation job and the
// LiveKit room transport it runs on.
package job

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one translation worker's assignment: a room and the language its
// listeners hear.
type Job struct {
	// ID is the unique identifier for this job
	ID string

	// RoomName is the LiveKit room this job is assigned to
	RoomName string

	// Language is the target language code of the room
	Language string

	// Context provides lifecycle management and shutdown coordination
	Context *JobContext
}

// JobContext manages the lifecycle and cleanup of a job.
type JobContext struct {
	// Ctx is the context that gets cancelled when the job ends
	Ctx context.Context

	cancel        context.CancelFunc
	logger        *slog.Logger
	shutdownMu    sync.Mutex
	shutdownHooks []func(string)
	shutdown      bool
}

// Config contains configuration options for creating a new Job.
type Config struct {
	// ID for the job (if empty, one will be generated)
	ID string

	// RoomName is the LiveKit room to join
	RoomName string

	// Language is the target language code
	Language string

	// Timeout bounds the whole job (0 = until shut down)
	Timeout time.Duration

	Logger *slog.Logger
}

// ShutdownHookTimeout bounds how long Shutdown waits for hooks.
const ShutdownHookTimeout = 5 * time.Second
