// Package registry tracks the live control and message connections of every
// container and layers at-least-once delivery and ping/pong liveness on top
// of them.
//
// Invariants:
//   - A peer id maps to at most one handle per channel; a handle belongs to
//     exactly one channel.
//   - A handle carries at most one pending delivery at a time.
//   - Teardown removes a handle from every map, tracker and liveness set in
//     a single critical section; the socket is closed at most once.
//   - Registry state is guarded by one mutex; network writes happen outside
//     it, serialized per handle by the link lock.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/proto"
)

var (
	ErrPeerNotFound      = errors.New("registry: peer not found")
	ErrHandshakeRejected = errors.New("registry: handshake rejected")
	ErrChannelConflict   = errors.New("registry: handle registered on another channel")
	ErrConnClosed        = errors.New("registry: connection closed")
)

// DefaultRetryBudget is the number of retransmissions a pending delivery gets
// before its connection is closed.
const DefaultRetryBudget = 10

// Channel distinguishes the two connections a container holds.
type Channel uint8

const (
	Control Channel = iota
	Message
)

func (c Channel) String() string {
	if c == Control {
		return "control"
	}
	return "message"
}

// Conn is one transport-level socket. Handles are compared by identity, so
// implementations should be pointer types.
type Conn interface {
	// Handshake completes the transport upgrade. Called once, on registration.
	Handshake() error
	Write(raw proto.Raw) error
	Close() error
}

// ReceiptSender is what data handlers use to confirm a stored message.
type ReceiptSender interface {
	SendReceipt(c Conn, id string, timestamp int64) error
}

// DataHandler receives every inbound frame that is not a protocol frame.
type DataHandler interface {
	HandleData(s ReceiptSender, c Conn, data []byte)
}

type DataHandlerFunc func(s ReceiptSender, c Conn, data []byte)

func (f DataHandlerFunc) HandleData(s ReceiptSender, c Conn, data []byte) { f(s, c, data) }

type Options struct {
	// RetryBudget defaults to DefaultRetryBudget.
	RetryBudget int
	// IgnoreControlAck keeps pending control signals alive when the control
	// connection acknowledges them; they then only leave by exhaustion.
	IgnoreControlAck bool
	Handler          DataHandler
}

// Close reasons, used as log field and metric label.
const (
	reasonRequested         = "requested"
	reasonPeerClose         = "peer_close"
	reasonDeliveryExhausted = "delivery_exhausted"
	reasonControlExhausted  = "control_exhausted"
	reasonLivenessExpired   = "liveness_expired"
	reasonShutdown          = "shutdown"
)

type link struct {
	conn    Conn
	channel Channel
	peerID  string // guarded by Registry.mu

	mu     sync.Mutex
	closed bool
}

func (l *link) write(raw proto.Raw) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrConnClosed
	}
	return l.conn.Write(raw)
}

// shutdown sends a close frame and closes the socket. Only the first call
// does anything; it reports whether it was that call.
func (l *link) shutdown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	_ = l.conn.Write(proto.Close())
	_ = l.conn.Close()
	return true
}

// target is a link paired with the peer id it had when it was picked up
// under the registry lock.
type target struct {
	l    *link
	peer string
}

type Registry struct {
	opts Options

	mu       sync.Mutex
	peers    [2]map[string]*link
	links    map[Conn]*link
	delivery deliveryTracker
	liveness [2]livenessSet
}

func New(opts Options) *Registry {
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = DefaultRetryBudget
	}
	return &Registry{
		opts:     opts,
		peers:    [2]map[string]*link{make(map[string]*link), make(map[string]*link)},
		links:    make(map[Conn]*link),
		delivery: newDeliveryTracker(),
		liveness: [2]livenessSet{make(livenessSet), make(livenessSet)},
	}
}

func (r *Registry) RegisterControl(peerID string, c Conn) error {
	return r.register(Control, peerID, c)
}

func (r *Registry) RegisterMessage(peerID string, c Conn) error {
	return r.register(Message, peerID, c)
}

// register completes the handshake and maps peerID to c on ch. A previous
// handle for peerID is dropped from the map but left open.
func (r *Registry) register(ch Channel, peerID string, c Conn) error {
	r.mu.Lock()
	existing, known := r.links[c]
	r.mu.Unlock()
	if known && existing.channel != ch {
		return fmt.Errorf("%w: %s", ErrChannelConflict, existing.channel)
	}
	if !known {
		if err := c.Handshake(); err != nil {
			obs.HandshakesTotal.WithLabelValues(ch.String(), "rejected").Inc()
			obs.Error("registry.handshake", obs.Fields{"peer": peerID, "channel": ch.String(), "err": err.Error()})
			return fmt.Errorf("%w: %v", ErrHandshakeRejected, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[c]
	switch {
	case ok && l.channel != ch:
		return fmt.Errorf("%w: %s", ErrChannelConflict, l.channel)
	case ok:
		if r.peers[ch][l.peerID] == l {
			delete(r.peers[ch], l.peerID)
		}
		l.peerID = peerID
	default:
		l = &link{conn: c, channel: ch, peerID: peerID}
		r.links[c] = l
	}
	if prev := r.peers[ch][peerID]; prev != nil && prev != l {
		obs.Info("registry.replace", obs.Fields{"peer": peerID, "channel": ch.String()})
	}
	r.peers[ch][peerID] = l
	r.updateGaugesLocked()
	obs.HandshakesTotal.WithLabelValues(ch.String(), "ok").Inc()
	obs.Info("registry.register", obs.Fields{"peer": peerID, "channel": ch.String()})
	return nil
}

// SendMessage writes a MESSAGE frame on the peer's message connection and
// starts tracking it unless a delivery is already outstanding there.
func (r *Registry) SendMessage(peerID string, payload []byte) error {
	r.mu.Lock()
	l := r.peers[Message][peerID]
	if l == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: no message channel for %q", ErrPeerNotFound, peerID)
	}
	r.delivery.trackMessage(l, payload, r.opts.RetryBudget)
	r.updateGaugesLocked()
	r.mu.Unlock()
	return r.write(target{l, peerID}, proto.Message(payload))
}

// SendControl writes a CONTROL_SIGNAL frame on the peer's control connection
// and starts tracking it unless a signal is already outstanding there.
func (r *Registry) SendControl(peerID string) error {
	r.mu.Lock()
	l := r.peers[Control][peerID]
	if l == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: no control channel for %q", ErrPeerNotFound, peerID)
	}
	r.delivery.trackControl(l, r.opts.RetryBudget)
	r.updateGaugesLocked()
	r.mu.Unlock()
	return r.write(target{l, peerID}, proto.ControlSignal())
}

// SendReceipt writes a RECEIPT frame straight to c, without lookup or tracking.
func (r *Registry) SendReceipt(c Conn, id string, timestamp int64) error {
	raw, err := proto.ReceiptFrame(proto.Receipt{ID: id, Timestamp: timestamp})
	if err != nil {
		return err
	}
	r.mu.Lock()
	l := r.links[c]
	var peer string
	if l != nil {
		peer = l.peerID
	}
	r.mu.Unlock()
	if l == nil {
		if err := c.Write(raw); err != nil {
			obs.WriteErrorsTotal.Inc()
			return fmt.Errorf("write receipt: %w", err)
		}
		return nil
	}
	return r.write(target{l, peer}, raw)
}

// CloseConnection removes c from every structure, then sends a close frame
// and closes the socket. Unknown or already closed handles are ignored.
func (r *Registry) CloseConnection(c Conn) {
	r.mu.Lock()
	l := r.links[c]
	if l == nil {
		r.mu.Unlock()
		return
	}
	t := target{l, l.peerID}
	r.detachLocked(l)
	r.mu.Unlock()
	r.finish(t, reasonRequested)
}

// CloseAll closes every registered connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]target, 0, len(r.links))
	for _, l := range r.links {
		all = append(all, target{l, l.peerID})
	}
	for _, t := range all {
		r.detachLocked(t.l)
	}
	r.mu.Unlock()
	for _, t := range all {
		r.finish(t, reasonShutdown)
	}
}

// detachLocked removes l from every map. Caller holds r.mu.
func (r *Registry) detachLocked(l *link) {
	if r.links[l.conn] != l {
		return
	}
	delete(r.links, l.conn)
	if r.peers[l.channel][l.peerID] == l {
		delete(r.peers[l.channel], l.peerID)
	}
	r.delivery.forget(l)
	delete(r.liveness[Control], l)
	delete(r.liveness[Message], l)
	r.updateGaugesLocked()
}

func (r *Registry) finish(t target, reason string) {
	if !t.l.shutdown() {
		return
	}
	if reason != reasonRequested {
		obs.ForcedClosesTotal.WithLabelValues(reason).Inc()
	}
	obs.Info("registry.close", obs.Fields{"peer": t.peer, "channel": t.l.channel.String(), "reason": reason})
}

func (r *Registry) write(t target, raw proto.Raw) error {
	if err := t.l.write(raw); err != nil {
		obs.WriteErrorsTotal.Inc()
		obs.Debug("registry.write", obs.Fields{"peer": t.peer, "channel": t.l.channel.String(), "wire": raw.Type.String(), "err": err.Error()})
		return fmt.Errorf("write %s frame to %q: %w", raw.Type, t.peer, err)
	}
	return nil
}

func (r *Registry) lookup(c Conn) (target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.links[c]
	if l == nil {
		return target{}, false
	}
	return target{l, l.peerID}, true
}

func (r *Registry) updateGaugesLocked() {
	obs.RegisteredPeers.WithLabelValues("control").Set(float64(len(r.peers[Control])))
	obs.RegisteredPeers.WithLabelValues("message").Set(float64(len(r.peers[Message])))
	obs.PendingDeliveries.WithLabelValues("message").Set(float64(len(r.delivery.messages)))
	obs.PendingDeliveries.WithLabelValues("control").Set(float64(len(r.delivery.controls)))
	obs.AwaitingPongs.WithLabelValues("control").Set(float64(len(r.liveness[Control])))
	obs.AwaitingPongs.WithLabelValues("message").Set(float64(len(r.liveness[Message])))
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	ControlPeers    int `json:"control_peers"`
	MessagePeers    int `json:"message_peers"`
	PendingMessages int `json:"pending_messages"`
	PendingControls int `json:"pending_controls"`
	AwaitingPongs   int `json:"awaiting_pongs"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		ControlPeers:    len(r.peers[Control]),
		MessagePeers:    len(r.peers[Message]),
		PendingMessages: len(r.delivery.messages),
		PendingControls: len(r.delivery.controls),
		AwaitingPongs:   len(r.liveness[Control]) + len(r.liveness[Message]),
	}
}

// Lookup returns the handle currently registered for peerID on ch.
func (r *Registry) Lookup(ch Channel, peerID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.peers[ch][peerID]
	if l == nil {
		return nil, false
	}
	return l.conn, true
}

// Peers returns the sorted ids registered on ch.
func (r *Registry) Peers(ch Channel) []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.peers[ch]))
	for id := range r.peers[ch] {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}
