package main

import (
	"context"
	"fmt"

	"github.com/matst80/fogsock/internal/obs"
	"github.com/matst80/fogsock/internal/store"
)

// newStore creates either a file-backed or Redis-backed message store based
// on configuration.
func newStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.RedisAddr == "" {
		obs.Info("store.backend", obs.Fields{"type": "file"})
		return store.NewFileStore(cfg.Catalog, cfg.ReceivedLog)
	}
	obs.Info("store.backend", obs.Fields{"type": "redis", "addr": cfg.RedisAddr})
	rs, err := store.NewRedisStore(store.RedisOptions{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Prefix:      cfg.RedisPrefix,
		MaxReceived: cfg.RedisMaxReceived,
	})
	if err != nil {
		return nil, err
	}
	if cfg.RedisSeed && cfg.Catalog != "" {
		samples, err := store.LoadCatalog(cfg.Catalog)
		if err == nil {
			err = rs.Seed(ctx, samples)
		}
		if err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("seed redis: %w", err)
		}
	}
	return rs, nil
}

func loadContainerConfig(path string) (string, error) {
	if path == "" {
		return "{}", nil
	}
	return store.LoadContainerConfig(path)
}
