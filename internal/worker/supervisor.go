package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/chriscow/livekit-translate-go/pkg/job"
)

// RunFunc runs one job until it ends. The job's context is cancelled when
// the supervisor stops.
type RunFunc func(ctx context.Context, j *job.Job) error

// Assignment is a room the supervisor keeps staffed.
type Assignment struct {
	Room     string
	Language string
}

// SupervisorConfig configures restart behavior.
type SupervisorConfig struct {
	Assignments []Assignment

	// MinBackoff and MaxBackoff bound the delay between restarts: 1s, 2s,
	// 4s, 8s, then MaxBackoff.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// StableAfter resets the backoff once a job has run this long.
	StableAfter time.Duration
}

// DefaultSupervisorConfig returns the restart policy used in production.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MinBackoff:  time.Second,
		MaxBackoff:  10 * time.Second,
		StableAfter: 30 * time.Second,
	}
}

// Supervisor runs one job per assignment and restarts it whenever it ends
// before the supervisor is stopped.
type Supervisor struct {
	cfg    SupervisorConfig
	run    RunFunc
	logger *slog.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(cfg SupervisorConfig, run RunFunc, logger *slog.Logger) *Supervisor {
	def := DefaultSupervisorConfig()
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.MinBackoff)
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = def.StableAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, run: run, logger: logger}
}

// Run blocks until ctx is done. It returns an error only if an assignment is
// invalid.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.cfg.Assignments) == 0 {
		return fmt.Errorf("no rooms to join")
	}
	for _, a := range s.cfg.Assignments {
		if a.Room == "" || a.Language == "" {
			return fmt.Errorf("invalid room assignment %q -> %q", a.Room, a.Language)
		}
	}

	s.logger.Info("Starting supervisor", slog.Int("rooms", len(s.cfg.Assignments)))

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range s.cfg.Assignments {
		g.Go(func() error {
			return s.supervise(gctx, a)
		})
	}
	err := g.Wait()

	s.logger.Info("Supervisor stopped")
	return err
}

func (s *Supervisor) supervise(ctx context.Context, a Assignment) error {
	logger := s.logger.With(slog.String("room", a.Room), slog.String("language", a.Language))

	b := &backoff.ExponentialBackOff{
		InitialInterval: s.cfg.MinBackoff,
		Multiplier:      2,
		MaxInterval:     s.cfg.MaxBackoff,
	}
	b.Reset()
	attempt := 0

	for {
		j, err := job.New(ctx, job.Config{
			RoomName: a.Room,
			Language: a.Language,
			Logger:   s.logger,
		})
		if err != nil {
			return err
		}

		start := time.Now()
		err = s.runJob(j)
		reason := "completed"
		if err != nil {
			reason = err.Error()
		}
		j.Shutdown(reason)

		if ctx.Err() != nil {
			return nil
		}

		if time.Since(start) >= s.cfg.StableAfter {
			b.Reset()
			attempt = 0
		}
		attempt++
		delay := b.NextBackOff()

		if err != nil {
			logger.Error("Room worker failed", slog.String("error", err.Error()))
		} else {
			logger.Warn("Room worker exited")
		}
		logger.Info("Restarting room worker with backoff",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func (s *Supervisor) runJob(j *job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("room worker panicked: %v", r)
		}
	}()

	err = s.run(j.Context.Ctx, j)
	if errors.Is(err, context.Canceled) && j.Context.Ctx.Err() != nil {
		return nil
	}
	return err
}
