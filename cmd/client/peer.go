package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/proto"
	"github.com/matst80/fogsock/internal/registry"
	"github.com/matst80/fogsock/internal/wsconn"
)

// peer is the container side of one socket: it answers pings, acknowledges
// server frames and reports receipts.
type peer struct {
	channel string
	onCtl   func()
}

func (p *peer) DeliverFrame(c registry.Conn, raw proto.Raw) {
	switch f := proto.Classify(raw); f.Kind {
	case proto.KindPing:
		_ = c.Write(proto.Pong())
	case proto.KindPong:
		obs.Debug("client.pong", obs.Fields{"channel": p.channel})
	case proto.KindClose:
		obs.Info("client.server_close", obs.Fields{"channel": p.channel})
		_ = c.Close()
	case proto.KindData:
		p.handleData(c, f.Data)
	}
}

func (p *peer) handleData(c registry.Conn, data []byte) {
	op, ok := proto.PeekOpcode(data)
	if !ok {
		return
	}
	switch op {
	case proto.OpMessage:
		payload, err := proto.DecodeMessage(data)
		if err != nil {
			obs.Warn("client.message.decode", obs.Fields{"err": err.Error()})
			return
		}
		_ = c.Write(proto.Ack())
		obs.Info("client.message", obs.Fields{"bytes": len(payload)})
	case proto.OpControlSignal:
		_ = c.Write(proto.Ack())
		obs.Info("client.control_signal", obs.Fields{})
		if p.onCtl != nil {
			go p.onCtl()
		}
	case proto.OpReceipt:
		r, err := proto.DecodeReceipt(data)
		if err != nil {
			obs.Warn("client.receipt.decode", obs.Fields{"err": err.Error()})
			return
		}
		obs.Info("client.receipt", obs.Fields{"id": r.ID, "timestamp": r.Timestamp})
	default:
		obs.Debug("client.unknown", obs.Fields{"opcode": op.String(), "bytes": len(data)})
	}
}

// runSession dials both sockets and serves them until either ends.
func runSession(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctl, err := wsconn.Dial(ctx, cfg.socketURL("control"), wsconn.Options{})
	if err != nil {
		return err
	}
	defer ctl.Close()
	msg, err := wsconn.Dial(ctx, cfg.socketURL("message"), wsconn.Options{})
	if err != nil {
		return err
	}
	defer msg.Close()
	obs.Info("client.connected", obs.Fields{"id": cfg.ID, "server": cfg.Server})

	var onCtl func()
	if cfg.FetchConfig {
		onCtl = func() {
			if err := fetchConfig(ctx, cfg); err != nil {
				obs.Warn("client.config", obs.Fields{"err": err.Error()})
			}
		}
	}
	errc := make(chan error, 2)
	go func() { errc <- ctl.Serve(ctx, &peer{channel: "control", onCtl: onCtl}) }()
	go func() { errc <- msg.Serve(ctx, &peer{channel: "message"}) }()
	if cfg.PublishInterval > 0 {
		go publish(ctx, msg, cfg)
	}
	select {
	case err = <-errc:
	case <-ctx.Done():
	}
	return err
}

func publish(ctx context.Context, c *wsconn.Conn, cfg Config) {
	t := time.NewTicker(cfg.PublishInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Write(proto.Message([]byte(cfg.PublishPayload))); err != nil {
				obs.Warn("client.publish", obs.Fields{"err": err.Error()})
				return
			}
		}
	}
}

func fetchConfig(ctx context.Context, cfg Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.configURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("config request: %s", resp.Status)
	}
	var body struct {
		Status string `json:"status"`
		Config string `json:"config"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	obs.Info("client.config", obs.Fields{"status": body.Status, "config": body.Config})
	return nil
}
