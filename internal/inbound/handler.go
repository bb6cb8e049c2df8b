// Package inbound stores MESSAGE frames sent by containers and confirms each
// one with a RECEIPT.
package inbound

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/proto"
	"github.com/matst80/fogsock/internal/registry"
	"github.com/matst80/fogsock/internal/store"
)

type Handler struct {
	rec     store.Recorder
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

var _ registry.DataHandler = (*Handler)(nil)

// New returns a handler that records through rec, giving each record call
// at most timeout.
func New(rec store.Recorder, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{rec: rec, timeout: timeout, now: time.Now, newID: uuid.NewString}
}

func (h *Handler) HandleData(s registry.ReceiptSender, c registry.Conn, data []byte) {
	if op, ok := proto.PeekOpcode(data); !ok || op != proto.OpMessage {
		obs.ReceivedTotal.WithLabelValues("ignored").Inc()
		obs.Debug("inbound.ignored", obs.Fields{"bytes": len(data)})
		return
	}
	payload, err := proto.DecodeMessage(data)
	if err != nil {
		obs.ReceivedTotal.WithLabelValues("malformed").Inc()
		obs.Warn("inbound.decode", obs.Fields{"err": err.Error()})
		return
	}
	m := store.Received{
		ID:        h.newID(),
		Timestamp: h.now().UnixMilli(),
		Payload:   append([]byte(nil), payload...),
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.rec.RecordReceived(ctx, m); err != nil {
		obs.ReceivedTotal.WithLabelValues("store_error").Inc()
		obs.Error("inbound.record", obs.Fields{"id": m.ID, "err": err.Error()})
		return
	}
	if err := s.SendReceipt(c, m.ID, m.Timestamp); err != nil {
		obs.ReceivedTotal.WithLabelValues("receipt_error").Inc()
		obs.Warn("inbound.receipt", obs.Fields{"id": m.ID, "err": err.Error()})
		return
	}
	obs.ReceivedTotal.WithLabelValues("ok").Inc()
	obs.Debug("inbound.stored", obs.Fields{"id": m.ID, "bytes": len(m.Payload)})
}
