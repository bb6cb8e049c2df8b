package registry

import "github.com/matst80/fogsock/internal/proto"

// livenessSet holds the connections of one channel that were pinged on the
// last tick and have not answered yet.
type livenessSet map[*link]struct{}

// CheckLiveness is one liveness tick for ch. Connections still awaiting a
// pong from the previous tick are closed, then every connection registered
// on ch is marked and pinged. A silent connection is therefore closed on the
// second tick after it went quiet.
func (r *Registry) CheckLiveness(ch Channel) {
	var expired, pings []target

	r.mu.Lock()
	for l := range r.liveness[ch] {
		expired = append(expired, target{l, l.peerID})
		r.detachLocked(l)
	}
	for id, l := range r.peers[ch] {
		r.liveness[ch][l] = struct{}{}
		pings = append(pings, target{l, id})
	}
	r.updateGaugesLocked()
	r.mu.Unlock()

	for _, t := range expired {
		r.finish(t, reasonLivenessExpired)
	}
	for _, t := range pings {
		_ = r.write(t, proto.Ping())
	}
}

func (r *Registry) handlePong(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.links[c]
	if l == nil {
		return
	}
	delete(r.liveness[l.channel], l)
	r.updateGaugesLocked()
}

// handlePing answers a peer-initiated keepalive. It does not touch the
// awaiting-pong bookkeeping.
func (r *Registry) handlePing(c Conn) {
	t, ok := r.lookup(c)
	if !ok {
		return
	}
	_ = r.write(t, proto.Pong())
}
