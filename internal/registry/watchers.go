package registry

import (
	"context"
	"time"

	"github.com/matst80/fogsock/internal/schedule"
)

// Intervals are the fixed delays of the four watchers.
type Intervals struct {
	MessageRetry    time.Duration
	ControlRetry    time.Duration
	ControlLiveness time.Duration
	MessageLiveness time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		MessageRetry:    5 * time.Second,
		ControlRetry:    10 * time.Second,
		ControlLiveness: 5 * time.Second,
		MessageLiveness: 10 * time.Second,
	}
}

// Watchers returns the retry and liveness ticks as schedulable tasks.
func (r *Registry) Watchers(iv Intervals) []schedule.Task {
	return []schedule.Task{
		{Name: "message-retry", Interval: iv.MessageRetry, Run: func(context.Context) { r.RetryMessages() }},
		{Name: "control-retry", Interval: iv.ControlRetry, Run: func(context.Context) { r.RetryControls() }},
		{Name: "control-liveness", Interval: iv.ControlLiveness, Run: func(context.Context) { r.CheckLiveness(Control) }},
		{Name: "message-liveness", Interval: iv.MessageLiveness, Run: func(context.Context) { r.CheckLiveness(Message) }},
	}
}
