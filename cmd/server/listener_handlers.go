package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/ratelimit"
	"github.com/matst80/fogsock/internal/registry"
	"github.com/matst80/fogsock/internal/server"
	"github.com/matst80/fogsock/internal/wsconn"
)

// localAPI serves the container-facing endpoints: the two socket routes and
// the config lookup.
type localAPI struct {
	ctx             context.Context
	reg             *registry.Registry
	limiter         *ratelimit.Limiter
	upgrader        *websocket.Upgrader
	wsOpts          wsconn.Options
	containerConfig string
}

func newLocalAPI(ctx context.Context, reg *registry.Registry, limiter *ratelimit.Limiter, cfg Config, containerConfig string) *localAPI {
	return &localAPI{
		ctx:     ctx,
		reg:     reg,
		limiter: limiter,
		upgrader: &websocket.Upgrader{
			// containers are not browsers; there is no origin to check
			CheckOrigin: func(*http.Request) bool { return true },
		},
		wsOpts:          wsconn.Options{MaxFrameSize: cfg.MaxFrameSize, WriteTimeout: cfg.WriteTimeout},
		containerConfig: containerConfig,
	}
}

func (a *localAPI) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(server.ControlSocketPrefix, a.handleSocket)
	mux.HandleFunc(server.MessageSocketPrefix, a.handleSocket)
	mux.HandleFunc(server.ConfigPath, a.handleConfig)
	return mux
}

func (a *localAPI) handleSocket(w http.ResponseWriter, r *http.Request) {
	ch, id, err := server.ParseSocketPath(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !a.limiter.AllowHandshake(id) {
		obs.HandshakesTotal.WithLabelValues(ch.String(), "throttled").Inc()
		obs.Warn("socket.throttled", obs.Fields{"peer": id, "channel": ch.String(), "remote": r.RemoteAddr})
		http.Error(w, "too many handshakes", http.StatusTooManyRequests)
		return
	}
	c := wsconn.Accept(w, r, a.upgrader, a.wsOpts)
	register := a.reg.RegisterControl
	if ch == registry.Message {
		register = a.reg.RegisterMessage
	}
	prev, hadPrev := a.reg.Lookup(ch, id)
	if err := register(id, c); err != nil {
		// a failed upgrade has already answered the request
		obs.Warn("socket.register", obs.Fields{"peer": id, "channel": ch.String(), "err": err.Error()})
		return
	}
	if hadPrev && prev != registry.Conn(c) {
		// replaced sockets leave the liveness rounds
		a.reg.CloseConnection(prev)
	}
	obs.Info("socket.open", obs.Fields{"peer": id, "channel": ch.String(), "remote": r.RemoteAddr})
	serveErr := c.Serve(a.ctx, a.reg)
	a.reg.CloseConnection(c)
	f := obs.Fields{"peer": id, "channel": ch.String()}
	if serveErr != nil {
		f["err"] = serveErr.Error()
	}
	obs.Info("socket.done", f)
}

type configResponse struct {
	Status string `json:"status"`
	Config string `json:"config"`
}

func (a *localAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if !a.limiter.AllowRequest(ip) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(configResponse{Status: "okay", Config: a.containerConfig})
}
