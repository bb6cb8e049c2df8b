package registry

import (
	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/proto"
)

// ackMarker is the pending delivery of one MESSAGE. The payload is the one
// sent first; later sends on the same connection do not replace it.
type ackMarker struct {
	data      []byte
	remaining int
}

type deliveryTracker struct {
	messages map[*link]*ackMarker
	controls map[*link]int
}

func newDeliveryTracker() deliveryTracker {
	return deliveryTracker{
		messages: make(map[*link]*ackMarker),
		controls: make(map[*link]int),
	}
}

func (d *deliveryTracker) trackMessage(l *link, payload []byte, budget int) {
	if _, ok := d.messages[l]; ok {
		return
	}
	d.messages[l] = &ackMarker{data: append([]byte(nil), payload...), remaining: budget}
}

func (d *deliveryTracker) trackControl(l *link, budget int) {
	if _, ok := d.controls[l]; ok {
		return
	}
	d.controls[l] = budget
}

func (d *deliveryTracker) forget(l *link) {
	delete(d.messages, l)
	delete(d.controls, l)
}

// RetryMessages is one message retry tick: every pending delivery with
// attempts left is resent and decremented, every exhausted one is dropped
// and its connection closed.
func (r *Registry) RetryMessages() {
	type resend struct {
		t    target
		data []byte
	}
	var sends []resend
	var dead []target

	r.mu.Lock()
	for l, m := range r.delivery.messages {
		if m.remaining > 0 {
			m.remaining--
			sends = append(sends, resend{target{l, l.peerID}, m.data})
			continue
		}
		dead = append(dead, target{l, l.peerID})
		r.detachLocked(l)
	}
	r.mu.Unlock()

	for _, t := range dead {
		r.finish(t, reasonDeliveryExhausted)
	}
	for _, s := range sends {
		obs.RetransmissionsTotal.WithLabelValues("message").Inc()
		_ = r.write(s.t, proto.Message(s.data))
	}
}

// RetryControls is one control retry tick, the control counterpart of
// RetryMessages. Every resend is a fresh CONTROL_SIGNAL frame.
func (r *Registry) RetryControls() {
	var sends, dead []target

	r.mu.Lock()
	for l, remaining := range r.delivery.controls {
		if remaining > 0 {
			r.delivery.controls[l] = remaining - 1
			sends = append(sends, target{l, l.peerID})
			continue
		}
		dead = append(dead, target{l, l.peerID})
		r.detachLocked(l)
	}
	r.mu.Unlock()

	for _, t := range dead {
		r.finish(t, reasonControlExhausted)
	}
	for _, t := range sends {
		obs.RetransmissionsTotal.WithLabelValues("control").Inc()
		_ = r.write(t, proto.ControlSignal())
	}
}

// handleAck clears the pending delivery of the connection the ACK arrived
// on. Peer maps are never touched.
func (r *Registry) handleAck(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.links[c]
	if l == nil {
		return
	}
	switch l.channel {
	case Message:
		delete(r.delivery.messages, l)
	case Control:
		if !r.opts.IgnoreControlAck {
			delete(r.delivery.controls, l)
		}
	}
	r.updateGaugesLocked()
}
