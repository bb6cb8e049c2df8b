// Package schedule runs named periodic tasks with fixed-delay semantics: the
// next run of a task starts Interval after the previous run returned. Every
// task runs once immediately on Start.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matst80/fogsock/internal/obs"
)

var (
	ErrStarted  = errors.New("schedule: already started")
	ErrInterval = errors.New("schedule: interval must be positive")
)

// Task is a plain function plus its delay.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

type Scheduler struct {
	tasks []Task

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

func New(tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks}
}

// Start launches one goroutine per task. The loops exit when ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, t := range s.tasks {
		if t.Interval <= 0 {
			return fmt.Errorf("%w: task %q", ErrInterval, t.Name)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			loop(ctx, t)
		}(t)
	}
	return nil
}

// Stop cancels all loops. Runs already in progress are not waited for.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every loop has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func loop(ctx context.Context, t Task) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		runOnce(ctx, t)
		timer.Reset(t.Interval)
	}
}

func runOnce(ctx context.Context, t Task) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			obs.Error("schedule.task.panic", obs.Fields{"task": t.Name, "panic": fmt.Sprint(rec)})
		}
	}()
	t.Run(ctx)
	obs.Debug("schedule.task.run", obs.Fields{"task": t.Name, "elapsed_us": time.Since(start).Microseconds()})
}
