package inbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matst80/fogsock/internal/proto"
	"github.com/matst80/fogsock/internal/registry"
	"github.com/matst80/fogsock/internal/store"
)

type memRecorder struct {
	got []store.Received
	err error
}

func (m *memRecorder) RecordReceived(ctx context.Context, r store.Received) error {
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, r)
	return nil
}

type receipt struct {
	c  registry.Conn
	id string
	ts int64
}

type receiptLog struct{ sent []receipt }

func (r *receiptLog) SendReceipt(c registry.Conn, id string, ts int64) error {
	r.sent = append(r.sent, receipt{c, id, ts})
	return nil
}

type nopConn struct{}

func (*nopConn) Handshake() error      { return nil }
func (*nopConn) Write(proto.Raw) error { return nil }
func (*nopConn) Close() error          { return nil }

func newTestHandler(rec store.Recorder) *Handler {
	h := New(rec, time.Second)
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }
	h.newID = func() string { return "id-1" }
	return h
}

func TestMessageStoredAndReceipted(t *testing.T) {
	rec := &memRecorder{}
	rl := &receiptLog{}
	c := &nopConn{}
	newTestHandler(rec).HandleData(rl, c, proto.EncodeMessage([]byte("payload")))

	if len(rec.got) != 1 || string(rec.got[0].Payload) != "payload" || rec.got[0].ID != "id-1" {
		t.Fatalf("Expected stored message, got %+v", rec.got)
	}
	if len(rl.sent) != 1 {
		t.Fatalf("Expected 1 receipt, got %d", len(rl.sent))
	}
	r := rl.sent[0]
	if r.c != c || r.id != "id-1" || r.ts != 1700000000000 {
		t.Errorf("Unexpected receipt %+v", r)
	}
}

func TestRecordFailureSendsNoReceipt(t *testing.T) {
	rl := &receiptLog{}
	newTestHandler(&memRecorder{err: errors.New("disk full")}).HandleData(rl, &nopConn{}, proto.EncodeMessage([]byte("x")))
	if len(rl.sent) != 0 {
		t.Errorf("Expected no receipt, got %d", len(rl.sent))
	}
}

func TestNonMessageIgnored(t *testing.T) {
	rec := &memRecorder{}
	rl := &receiptLog{}
	h := newTestHandler(rec)
	h.HandleData(rl, &nopConn{}, nil)
	h.HandleData(rl, &nopConn{}, []byte{byte(proto.OpControlSignal)})
	h.HandleData(rl, &nopConn{}, []byte{byte(proto.OpMessage), 0, 0, 0, 9, 1})
	if len(rec.got) != 0 || len(rl.sent) != 0 {
		t.Errorf("Expected nothing stored, got %d stored %d receipts", len(rec.got), len(rl.sent))
	}
}

func TestPayloadCopied(t *testing.T) {
	rec := &memRecorder{}
	frame := proto.EncodeMessage([]byte("abc"))
	newTestHandler(rec).HandleData(&receiptLog{}, &nopConn{}, frame)
	frame[5] = 'z'
	if string(rec.got[0].Payload) != "abc" {
		t.Errorf("Expected stored payload independent of frame buffer, got %q", rec.got[0].Payload)
	}
}

func TestThroughRegistry(t *testing.T) {
	rec := &memRecorder{}
	r := registry.New(registry.Options{Handler: newTestHandler(rec)})
	c := &captureConn{}
	if err := r.RegisterMessage("c1", c); err != nil {
		t.Fatal(err)
	}
	r.DeliverFrame(c, proto.Message([]byte("hello")))
	if len(c.frames) != 1 {
		t.Fatalf("Expected 1 receipt frame, got %d", len(c.frames))
	}
	got, err := proto.DecodeReceipt(c.frames[0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "id-1" || got.Timestamp != 1700000000000 {
		t.Errorf("Unexpected receipt %+v", got)
	}
}

type captureConn struct{ frames []proto.Raw }

func (*captureConn) Handshake() error { return nil }
func (c *captureConn) Write(raw proto.Raw) error {
	c.frames = append(c.frames, raw)
	return nil
}
func (*captureConn) Close() error { return nil }
