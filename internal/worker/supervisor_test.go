package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/chriscow/livekit-translate-go/pkg/job"
)

func fastRestarts(assignments ...Assignment) SupervisorConfig {
	return SupervisorConfig{
		Assignments: assignments,
		MinBackoff:  time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		StableAfter: time.Minute,
	}
}

type runCounter struct {
	mu    sync.Mutex
	calls map[string]int
	langs map[string]string
}

func newRunCounter() *runCounter {
	return &runCounter{calls: map[string]int{}, langs: map[string]string{}}
}

func (c *runCounter) record(j *job.Job) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[j.RoomName]++
	c.langs[j.RoomName] = j.Language
	return c.calls[j.RoomName]
}

func (c *runCounter) count(room string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[room]
}

func runSupervisor(t *testing.T, s *Supervisor) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return cancel, done
}

func awaitStop(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not stop")
		return nil
	}
}

func TestSupervisor_RestartsFailedJobs(t *testing.T) {
	is := is.New(t)

	counter := newRunCounter()
	run := func(ctx context.Context, j *job.Job) error {
		if counter.record(j) <= 2 {
			return ErrRoomDisconnected
		}
		<-ctx.Done()
		return ctx.Err()
	}

	s := NewSupervisor(fastRestarts(Assignment{Room: "Pryme-Korean", Language: "ko"}), run, nil)
	cancel, done := runSupervisor(t, s)

	waitFor(t, "third run", func() bool { return counter.count("Pryme-Korean") == 3 })
	cancel()
	is.NoErr(awaitStop(t, done))
	is.Equal(counter.count("Pryme-Korean"), 3) // no restart once stopped
}

func TestSupervisor_RecoversFromPanics(t *testing.T) {
	counter := newRunCounter()
	run := func(ctx context.Context, j *job.Job) error {
		if counter.record(j) == 1 {
			panic("boom")
		}
		<-ctx.Done()
		return nil
	}

	s := NewSupervisor(fastRestarts(Assignment{Room: "Pryme-Malay", Language: "ms"}), run, nil)
	cancel, done := runSupervisor(t, s)
	defer cancel()

	waitFor(t, "restart after panic", func() bool { return counter.count("Pryme-Malay") == 2 })
	cancel()
	if err := awaitStop(t, done); err != nil {
		t.Errorf("Run() = %v", err)
	}
}

func TestSupervisor_OneJobPerRoom(t *testing.T) {
	is := is.New(t)

	counter := newRunCounter()
	var shutdowns sync.WaitGroup
	shutdowns.Add(2)
	run := func(ctx context.Context, j *job.Job) error {
		counter.record(j)
		j.Context.OnShutdown(func(string) { shutdowns.Done() })
		<-ctx.Done()
		return nil
	}

	s := NewSupervisor(fastRestarts(
		Assignment{Room: "Pryme-Japanese", Language: "ja"},
		Assignment{Room: "Pryme-Vietnamese", Language: "vi"},
	), run, nil)
	cancel, done := runSupervisor(t, s)

	waitFor(t, "both rooms", func() bool {
		return counter.count("Pryme-Japanese") == 1 && counter.count("Pryme-Vietnamese") == 1
	})
	cancel()
	is.NoErr(awaitStop(t, done))
	shutdowns.Wait() // every job is shut down

	counter.mu.Lock()
	defer counter.mu.Unlock()
	is.Equal(counter.langs["Pryme-Japanese"], "ja")
	is.Equal(counter.langs["Pryme-Vietnamese"], "vi")
}

func TestSupervisor_InvalidAssignments(t *testing.T) {
	run := func(context.Context, *job.Job) error { return nil }

	tests := []struct {
		name        string
		assignments []Assignment
	}{
		{"none", nil},
		{"missing room", []Assignment{{Language: "ja"}}},
		{"missing language", []Assignment{{Room: "Pryme-Japanese"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSupervisor(fastRestarts(tt.assignments...), run, nil)
			if err := s.Run(context.Background()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestNewSupervisor_Defaults(t *testing.T) {
	is := is.New(t)

	s := NewSupervisor(SupervisorConfig{}, nil, nil)
	is.Equal(s.cfg.MinBackoff, time.Second)
	is.Equal(s.cfg.MaxBackoff, 10*time.Second)
	is.Equal(s.cfg.StableAfter, 30*time.Second)
}
