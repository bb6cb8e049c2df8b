package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRunsImmediatelyThenRepeats(t *testing.T) {
	var runs atomic.Int32
	s := New(Task{Name: "count", Interval: 10 * time.Millisecond, Run: func(context.Context) { runs.Add(1) }})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	waitFor(t, time.Second, func() bool { return runs.Load() >= 1 })
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
}

func TestFixedDelay(t *testing.T) {
	// a run that takes longer than the interval must never overlap with itself
	var active, overlaps, runs atomic.Int32
	s := New(Task{Name: "slow", Interval: time.Millisecond, Run: func(context.Context) {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
	}})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 5 })
	s.Stop()
	s.Wait()
	if overlaps.Load() != 0 {
		t.Errorf("Expected no overlapping runs, got %d", overlaps.Load())
	}
}

func TestPanicDoesNotStopTask(t *testing.T) {
	var runs atomic.Int32
	s := New(Task{Name: "boom", Interval: time.Millisecond, Run: func(context.Context) {
		runs.Add(1)
		panic("boom")
	}})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
}

func TestStopEndsLoops(t *testing.T) {
	var runs atomic.Int32
	s := New(Task{Name: "a", Interval: time.Millisecond, Run: func(context.Context) { runs.Add(1) }})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runs.Load() >= 1 })
	s.Stop()
	s.Wait()
	n := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != n {
		t.Errorf("Expected no runs after Stop, got %d more", runs.Load()-n)
	}
}

func TestStartValidation(t *testing.T) {
	s := New(Task{Name: "zero", Interval: 0, Run: func(context.Context) {}})
	if err := s.Start(context.Background()); !errors.Is(err, ErrInterval) {
		t.Errorf("Expected ErrInterval, got %v", err)
	}
	s = New(Task{Name: "ok", Interval: time.Hour, Run: func(context.Context) {}})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Errorf("Expected ErrStarted, got %v", err)
	}
}

func TestContextCancelEndsLoops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Task{Name: "ctx", Interval: time.Millisecond, Run: func(context.Context) {}})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loops did not exit after context cancel")
	}
}
