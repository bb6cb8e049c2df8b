package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegisteredPeers      = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "fogsock_registered_peers", Help: "Registered peers by channel"}, []string{"channel"})
	PendingDeliveries    = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "fogsock_pending_deliveries", Help: "Outstanding unacknowledged deliveries by kind"}, []string{"kind"})
	AwaitingPongs        = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "fogsock_awaiting_pongs", Help: "Connections awaiting a pong by channel"}, []string{"channel"})
	RetransmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "fogsock_retransmissions_total", Help: "Frames resent by the retry watchers"}, []string{"kind"})
	ForcedClosesTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "fogsock_forced_closes_total", Help: "Connections closed by reason"}, []string{"reason"})
	FramesInTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Name: "fogsock_frames_in_total", Help: "Inbound frames by classified kind"}, []string{"kind"})
	WriteErrorsTotal     = promauto.NewCounter(prometheus.CounterOpts{Name: "fogsock_write_errors_total", Help: "Failed transport writes"})
	EmitterSendsTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "fogsock_emitter_sends_total", Help: "Periodic emitter sends by kind and result"}, []string{"kind", "result"})
	ReceivedTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Name: "fogsock_received_messages_total", Help: "Inbound application messages by result"}, []string{"result"})
	HandshakesTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "fogsock_handshakes_total", Help: "Socket handshakes by channel and result"}, []string{"channel", "result"})
)
