// Package wsconn adapts gorilla/websocket connections to registry.Conn.
// Protocol pings and pongs travel in WebSocket control frames, every other
// frame in a binary message.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/proto"
	"github.com/matst80/fogsock/internal/registry"
)

var ErrNotUpgraded = errors.New("wsconn: handshake not completed")

type Options struct {
	// MaxFrameSize bounds inbound messages; 0 means 1 MiB.
	MaxFrameSize int64
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = 1 << 20
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// FrameSink receives every inbound frame. *registry.Registry is one.
type FrameSink interface {
	DeliverFrame(c registry.Conn, raw proto.Raw)
}

type Conn struct {
	opts Options

	// pending upgrade, cleared by Handshake
	w  http.ResponseWriter
	r  *http.Request
	up *websocket.Upgrader

	ws  *websocket.Conn
	wmu sync.Mutex
}

var _ registry.Conn = (*Conn)(nil)

// Accept wraps an HTTP request that has not been upgraded yet. The upgrade
// happens in Handshake, so it runs as part of registration.
func Accept(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, opts Options) *Conn {
	return &Conn{opts: opts.withDefaults(), w: w, r: r, up: up}
}

// Dial opens a client connection. The returned Conn is already upgraded.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{opts: opts.withDefaults(), ws: ws}, nil
}

func (c *Conn) Handshake() error {
	if c.ws != nil {
		return nil
	}
	if c.up == nil {
		return ErrNotUpgraded
	}
	ws, err := c.up.Upgrade(c.w, c.r, nil)
	if err != nil {
		return err
	}
	c.ws = ws
	c.w, c.r, c.up = nil, nil, nil
	return nil
}

func (c *Conn) Write(raw proto.Raw) error {
	if c.ws == nil {
		return ErrNotUpgraded
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	switch raw.Type {
	case proto.WirePing:
		return c.ws.WriteControl(websocket.PingMessage, raw.Data, deadline)
	case proto.WirePong:
		return c.ws.WriteControl(websocket.PongMessage, raw.Data, deadline)
	case proto.WireClose:
		return c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	case proto.WireText:
		_ = c.ws.SetWriteDeadline(deadline)
		return c.ws.WriteMessage(websocket.TextMessage, raw.Data)
	default:
		_ = c.ws.SetWriteDeadline(deadline)
		return c.ws.WriteMessage(websocket.BinaryMessage, raw.Data)
	}
}

func (c *Conn) Close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

func (c *Conn) RemoteAddr() string {
	if c.ws == nil {
		if c.r != nil {
			return c.r.RemoteAddr
		}
		return ""
	}
	return c.ws.RemoteAddr().String()
}

// Serve reads frames until the connection fails, the peer closes it, or ctx
// is done. Control frames are handed to sink from within the read loop.
func (c *Conn) Serve(ctx context.Context, sink FrameSink) error {
	if c.ws == nil {
		return ErrNotUpgraded
	}
	c.ws.SetReadLimit(c.opts.MaxFrameSize)
	c.ws.SetPingHandler(func(data string) error {
		sink.DeliverFrame(c, proto.Raw{Type: proto.WirePing, Data: []byte(data)})
		return nil
	})
	c.ws.SetPongHandler(func(data string) error {
		sink.DeliverFrame(c, proto.Raw{Type: proto.WirePong, Data: []byte(data)})
		return nil
	})
	c.ws.SetCloseHandler(func(code int, text string) error {
		sink.DeliverFrame(c, proto.Raw{Type: proto.WireClose})
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.ws.Close()
		case <-done:
		}
	}()

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isNormalClose(err) {
				return nil
			}
			obs.Debug("wsconn.read", obs.Fields{"remote": c.RemoteAddr(), "err": err.Error()})
			return err
		}
		wt := proto.WireBinary
		if mt == websocket.TextMessage {
			wt = proto.WireText
		}
		sink.DeliverFrame(c, proto.Raw{Type: wt, Data: data})
	}
}

func isNormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
