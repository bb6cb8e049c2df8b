package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/registry"
	"github.com/matst80/fogsock/internal/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// lifecycle backs /readyz.
type lifecycle struct {
	ready   atomic.Bool
	closing atomic.Bool
}

func metricsMux(reg *registry.Registry, lc *lifecycle) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/fogsock/metrics", promhttp.Handler())
	mux.HandleFunc("/fogsock/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(collectStats(reg))
	})
	mux.HandleFunc("/fogsock/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := web.Render(w, "dashboard", collectStats(reg).ToTemplateMap()); err != nil {
			http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if lc.closing.Load() || !lc.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// startMetricsServer serves Prometheus metrics plus lightweight dashboard & state endpoints.
func startMetricsServer(addr string, reg *registry.Registry, lc *lifecycle) *http.Server {
	srv := &http.Server{Addr: addr, Handler: metricsMux(reg, lc)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Error("metrics.server", obs.Fields{"err": err.Error(), "addr": addr})
		}
	}()
	return srv
}
