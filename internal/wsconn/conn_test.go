package wsconn

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matst80/fogsock/internal/proto"
	"github.com/matst80/fogsock/internal/registry"
)

type chanSink chan proto.Raw

func (s chanSink) DeliverFrame(c registry.Conn, raw proto.Raw) { s <- raw }

func recv(t *testing.T, s chanSink) proto.Raw {
	t.Helper()
	select {
	case raw := <-s:
		return raw
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return proto.Raw{}
	}
}

// pair starts a server that upgrades, then serves into serverSink, and
// returns the dialed client plus the server side conn.
func pair(t *testing.T, serverSink FrameSink) (*Conn, <-chan *Conn) {
	t.Helper()
	up := &websocket.Upgrader{}
	accepted := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Accept(w, r, up, Options{})
		if err := c.Handshake(); err != nil {
			return
		}
		accepted <- c
		_ = c.Serve(r.Context(), serverSink)
	}))
	t.Cleanup(srv.Close)
	cli, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return cli, accepted
}

func TestFramesArriveWithWireType(t *testing.T) {
	sink := make(chanSink, 8)
	cli, _ := pair(t, sink)

	if err := cli.Write(proto.Message([]byte{1, 2})); err != nil {
		t.Fatal(err)
	}
	got := recv(t, sink)
	if got.Type != proto.WireBinary || !bytes.Equal(got.Data, proto.EncodeMessage([]byte{1, 2})) {
		t.Errorf("Expected binary MESSAGE, got %s % X", got.Type, got.Data)
	}

	_ = cli.Write(proto.Ping())
	if got := proto.Classify(recv(t, sink)); got.Kind != proto.KindPing {
		t.Errorf("Expected ping, got %s", got.Kind)
	}
	_ = cli.Write(proto.Pong())
	if got := proto.Classify(recv(t, sink)); got.Kind != proto.KindPong {
		t.Errorf("Expected pong, got %s", got.Kind)
	}
	_ = cli.Write(proto.Ack())
	if got := proto.Classify(recv(t, sink)); got.Kind != proto.KindAck {
		t.Errorf("Expected ack, got %s", got.Kind)
	}
	_ = cli.Write(proto.Close())
	if got := proto.Classify(recv(t, sink)); got.Kind != proto.KindClose {
		t.Errorf("Expected close, got %s", got.Kind)
	}
}

func TestServerWritesReachClient(t *testing.T) {
	cli, accepted := pair(t, make(chanSink, 8))
	var srvConn *Conn
	select {
	case srvConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no server conn")
	}

	clientSink := make(chanSink, 8)
	go func() { _ = cli.Serve(context.Background(), clientSink) }()

	if err := srvConn.Write(proto.ControlSignal()); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, clientSink); !bytes.Equal(got.Data, []byte{byte(proto.OpControlSignal)}) {
		t.Errorf("Expected CONTROL_SIGNAL, got % X", got.Data)
	}
	_ = srvConn.Write(proto.Ping())
	if got := proto.Classify(recv(t, clientSink)); got.Kind != proto.KindPing {
		t.Errorf("Expected ping at client, got %s", got.Kind)
	}
}

func TestRegistryOverWebSocket(t *testing.T) {
	reg := registry.New(registry.Options{})
	up := &websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Accept(w, r, up, Options{})
		if err := reg.RegisterMessage("c1", c); err != nil {
			return
		}
		_ = c.Serve(r.Context(), reg)
		reg.CloseConnection(c)
	}))
	defer srv.Close()

	cli, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()
	clientSink := make(chanSink, 8)
	go func() { _ = cli.Serve(context.Background(), clientSink) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(reg.Peers(registry.Message)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := reg.SendMessage("c1", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got := recv(t, clientSink)
	payload, err := proto.DecodeMessage(got.Data)
	if err != nil || string(payload) != "hello" {
		t.Fatalf("Expected hello, got %q (%v)", payload, err)
	}
	_ = cli.Write(proto.Ack())
	deadline = time.Now().Add(2 * time.Second)
	for reg.Stats().PendingMessages != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := reg.Stats().PendingMessages; n != 0 {
		t.Errorf("Expected ack to clear pending message, got %d", n)
	}
}

func TestWriteBeforeHandshake(t *testing.T) {
	c := &Conn{}
	if err := c.Write(proto.Ack()); err != ErrNotUpgraded {
		t.Errorf("Expected ErrNotUpgraded, got %v", err)
	}
	if err := c.Handshake(); err != ErrNotUpgraded {
		t.Errorf("Expected ErrNotUpgraded, got %v", err)
	}
}
