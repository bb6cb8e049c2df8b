package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/matst80/fogsock/internal/obs"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the keys: <prefix>:samples and <prefix>:received.
	Prefix string
	// MaxReceived caps the received list; 0 keeps everything.
	MaxReceived int64
}

// RedisStore shares samples and received messages between server instances.
type RedisStore struct {
	client      *redis.Client
	samplesKey  string
	receivedKey string
	maxReceived int64
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "fogsock"
	}
	return &RedisStore{
		client:      rdb,
		samplesKey:  prefix + ":samples",
		receivedKey: prefix + ":received",
		maxReceived: opts.MaxReceived,
	}, nil
}

// Seed replaces the stored samples.
func (r *RedisStore) Seed(ctx context.Context, samples [][]byte) error {
	if len(samples) == 0 {
		return ErrEmptyCatalog
	}
	vals := make([]any, len(samples))
	for i, s := range samples {
		vals[i] = s
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.samplesKey)
		p.RPush(ctx, r.samplesKey, vals...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis seed failed: %w", err)
	}
	obs.Info("store.redis.seed", obs.Fields{"key": r.samplesKey, "samples": len(samples)})
	return nil
}

func (r *RedisStore) NextSamplePayload(ctx context.Context) ([]byte, error) {
	n, err := r.client.LLen(ctx, r.samplesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis llen failed: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyCatalog
	}
	b, err := r.client.LIndex(ctx, r.samplesKey, rand.Int63n(n)).Bytes()
	if errors.Is(err, redis.Nil) {
		// list shrank between LLEN and LINDEX
		return nil, ErrEmptyCatalog
	}
	if err != nil {
		return nil, fmt.Errorf("redis lindex failed: %w", err)
	}
	return b, nil
}

func (r *RedisStore) RecordReceived(ctx context.Context, m Received) error {
	data, err := json.Marshal(m.record())
	if err != nil {
		return fmt.Errorf("marshal received: %w", err)
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, r.receivedKey, data)
		if r.maxReceived > 0 {
			p.LTrim(ctx, r.receivedKey, -r.maxReceived, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
