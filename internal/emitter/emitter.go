// Package emitter periodically pushes a sample MESSAGE and a CONTROL_SIGNAL
// to one container through the registry.
package emitter

import (
	"context"
	"errors"
	"time"

	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/schedule"
)

var ErrNoPeer = errors.New("emitter: peer id required")

type Sender interface {
	SendMessage(peerID string, payload []byte) error
	SendControl(peerID string) error
}

// Source supplies the payload of each periodic MESSAGE.
type Source interface {
	NextSamplePayload(ctx context.Context) ([]byte, error)
}

type Options struct {
	PeerID          string
	MessageInterval time.Duration
	ControlInterval time.Duration
}

func DefaultOptions(peerID string) Options {
	return Options{PeerID: peerID, MessageInterval: 10 * time.Second, ControlInterval: 30 * time.Second}
}

type Emitter struct {
	opts   Options
	sender Sender
	source Source
	sched  *schedule.Scheduler
}

func New(opts Options, sender Sender, source Source) (*Emitter, error) {
	if opts.PeerID == "" {
		return nil, ErrNoPeer
	}
	e := &Emitter{opts: opts, sender: sender, source: source}
	e.sched = schedule.New(
		schedule.Task{Name: "emit-message", Interval: opts.MessageInterval, Run: e.emitMessage},
		schedule.Task{Name: "emit-control", Interval: opts.ControlInterval, Run: e.emitControl},
	)
	return e, nil
}

// Start runs both tasks, each once immediately and then after every
// interval, until ctx is done or Stop is called.
func (e *Emitter) Start(ctx context.Context) error {
	if err := e.sched.Start(ctx); err != nil {
		return err
	}
	obs.Info("emitter.start", obs.Fields{"peer": e.opts.PeerID, "message_every": e.opts.MessageInterval.String(), "control_every": e.opts.ControlInterval.String()})
	return nil
}

// Stop cancels both tasks and waits for their loops to exit. A send already
// in progress is not interrupted, so Stop can block for up to one socket
// write timeout.
func (e *Emitter) Stop() {
	e.sched.Stop()
	e.sched.Wait()
}

func (e *Emitter) emitMessage(ctx context.Context) {
	payload, err := e.source.NextSamplePayload(ctx)
	if err != nil {
		obs.EmitterSendsTotal.WithLabelValues("message", "source_error").Inc()
		obs.Warn("emitter.sample", obs.Fields{"peer": e.opts.PeerID, "err": err.Error()})
		return
	}
	if err := e.sender.SendMessage(e.opts.PeerID, payload); err != nil {
		obs.EmitterSendsTotal.WithLabelValues("message", "error").Inc()
		obs.Warn("emitter.send_message", obs.Fields{"peer": e.opts.PeerID, "err": err.Error()})
		return
	}
	obs.EmitterSendsTotal.WithLabelValues("message", "ok").Inc()
	obs.Debug("emitter.send_message", obs.Fields{"peer": e.opts.PeerID, "bytes": len(payload)})
}

func (e *Emitter) emitControl(context.Context) {
	if err := e.sender.SendControl(e.opts.PeerID); err != nil {
		obs.EmitterSendsTotal.WithLabelValues("control", "error").Inc()
		obs.Warn("emitter.send_control", obs.Fields{"peer": e.opts.PeerID, "err": err.Error()})
		return
	}
	obs.EmitterSendsTotal.WithLabelValues("control", "ok").Inc()
}
