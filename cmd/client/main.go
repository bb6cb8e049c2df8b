package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matst80/fogsock/internal/obs"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		obs.Error("client.exit", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fogsock-client",
		Short: "Test container peer for fogsock-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			obs.EnableDebug(cfg.Debug)
			run(cmd.Context(), cfg)
			return nil
		},
	}
	registerFlags(cmd.Flags())
	return cmd
}

// run keeps a session open until ctx is done, reconnecting after failures.
func run(ctx context.Context, cfg Config) {
	obs.Info("client.start", obs.Fields{"id": cfg.ID, "server": cfg.Server})
	for {
		if err := runSession(ctx, cfg); err != nil {
			obs.Warn("client.session", obs.Fields{"err": err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.ReconnectDelay):
		}
		obs.Info("client.reconnect", obs.Fields{"id": cfg.ID})
	}
}
