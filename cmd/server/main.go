package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/matst80/fogsock/internal/emitter"
	"github.com/matst80/fogsock/internal/inbound"
	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/ratelimit"
	"github.com/matst80/fogsock/internal/registry"
	"github.com/matst80/fogsock/internal/schedule"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		obs.Error("server.exit", obs.Fields{"err": err.Error()})
		obs.Sync()
		os.Exit(1)
	}
	obs.Sync()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fogsock-server",
		Short: "Reliable control and message sockets for edge containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	registerFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg Config) error {
	obs.EnableDebug(cfg.Debug)
	obs.Info("server.start", obs.Fields{"listen": cfg.Listen, "metrics": cfg.MetricsAddr, "tls": cfg.EnableTLS, "emit_peer": cfg.EmitPeer})

	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	containerConfig, err := loadContainerConfig(cfg.ContainerConfig)
	if err != nil {
		return err
	}

	reg := registry.New(registry.Options{
		RetryBudget:      cfg.RetryBudget,
		IgnoreControlAck: cfg.IgnoreControlAck,
		Handler:          inbound.New(st, cfg.RecordTimeout),
	})
	limiter := ratelimit.New(cfg.limits())

	tasks := append(reg.Watchers(cfg.intervals()), schedule.Task{
		Name:     "ratelimit-cleanup",
		Interval: cfg.CleanupInterval,
		Run: func(context.Context) {
			if n := limiter.Cleanup(activePeers(reg), cfg.CleanupInterval); n > 0 {
				obs.Debug("ratelimit.cleanup", obs.Fields{"removed": n})
			}
		},
	})
	watchers := schedule.New(tasks...)
	if err := watchers.Start(ctx); err != nil {
		return err
	}

	var em *emitter.Emitter
	if cfg.EmitPeer != "" {
		em, err = emitter.New(cfg.emitterOptions(), reg, st)
		if err != nil {
			return err
		}
		if err := em.Start(ctx); err != nil {
			return err
		}
	}

	lc := &lifecycle{}
	metricsSrv := startMetricsServer(cfg.MetricsAddr, reg, lc)

	api := &http.Server{Addr: cfg.Listen, Handler: newLocalAPI(ctx, reg, limiter, cfg, containerConfig).routes()}
	serveErr := make(chan error, 1)
	go func() {
		var err error
		if cfg.EnableTLS {
			err = api.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = api.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()
	lc.ready.Store(true)
	obs.Info("server.ready", obs.Fields{})

	var runErr error
	select {
	case <-ctx.Done():
		obs.Info("server.shutdown.signal", obs.Fields{})
	case runErr = <-serveErr:
		if runErr != nil {
			runErr = fmt.Errorf("local api: %w", runErr)
		}
	}
	lc.closing.Store(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = api.Shutdown(shutdownCtx)
	if em != nil {
		em.Stop()
	}
	watchers.Stop()
	watchers.Wait()
	reg.CloseAll()
	_ = metricsSrv.Shutdown(shutdownCtx)
	obs.Info("server.shutdown.complete", obs.Fields{})
	return runErr
}

func activePeers(reg *registry.Registry) map[string]bool {
	active := make(map[string]bool)
	for _, ch := range []registry.Channel{registry.Control, registry.Message} {
		for _, id := range reg.Peers(ch) {
			active[id] = true
		}
	}
	return active
}
