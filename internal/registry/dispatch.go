package registry

import (
	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/proto"
)

// DeliverFrame is called by the transport for every inbound frame on c.
// Exactly one handler runs, chosen by proto.Classify.
func (r *Registry) DeliverFrame(c Conn, raw proto.Raw) {
	f := proto.Classify(raw)
	obs.FramesInTotal.WithLabelValues(f.Kind.String()).Inc()
	switch f.Kind {
	case proto.KindClose:
		r.handleClose(c)
	case proto.KindPing:
		r.handlePing(c)
	case proto.KindAck:
		r.handleAck(c)
	case proto.KindPong:
		r.handlePong(c)
	default:
		r.handleData(c, f.Data)
	}
}

// handleClose tears down a known connection. A close on an unknown handle is
// ignored: it was either already torn down, and closed, by another path or
// never registered, in which case its owner closes it.
func (r *Registry) handleClose(c Conn) {
	r.mu.Lock()
	l := r.links[c]
	if l == nil {
		r.mu.Unlock()
		return
	}
	t := target{l, l.peerID}
	r.detachLocked(l)
	r.mu.Unlock()
	r.finish(t, reasonPeerClose)
}

func (r *Registry) handleData(c Conn, data []byte) {
	if r.opts.Handler == nil {
		obs.Debug("registry.data.unhandled", obs.Fields{"bytes": len(data)})
		return
	}
	r.opts.Handler.HandleData(r, c, data)
}
