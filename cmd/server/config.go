package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matst80/fogsock/internal/emitter"
	"github.com/matst80/fogsock/internal/ratelimit"
	"github.com/matst80/fogsock/internal/registry"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration. Keys match the flag names; every
// key can also come from a config file or a FOGSOCK_ environment variable.
type Config struct {
	Listen      string `mapstructure:"listen"`
	MetricsAddr string `mapstructure:"metrics"`
	Debug       bool   `mapstructure:"debug"`

	EnableTLS   bool   `mapstructure:"tls"`
	TLSCertFile string `mapstructure:"tls-cert"`
	TLSKeyFile  string `mapstructure:"tls-key"`

	MaxFrameSize int64         `mapstructure:"max-frame-size"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`

	RetryBudget      int           `mapstructure:"retry-budget"`
	IgnoreControlAck bool          `mapstructure:"ignore-control-ack"`
	MessageRetry     time.Duration `mapstructure:"message-retry"`
	ControlRetry     time.Duration `mapstructure:"control-retry"`
	ControlLiveness  time.Duration `mapstructure:"control-liveness"`
	MessageLiveness  time.Duration `mapstructure:"message-liveness"`

	EmitPeer            string        `mapstructure:"emit-peer"`
	EmitMessageInterval time.Duration `mapstructure:"emit-message-interval"`
	EmitControlInterval time.Duration `mapstructure:"emit-control-interval"`

	Catalog         string        `mapstructure:"catalog"`
	ReceivedLog     string        `mapstructure:"received-log"`
	ContainerConfig string        `mapstructure:"container-config"`
	RecordTimeout   time.Duration `mapstructure:"record-timeout"`

	RedisAddr        string `mapstructure:"redis-addr"`
	RedisPassword    string `mapstructure:"redis-password"`
	RedisDB          int    `mapstructure:"redis-db"`
	RedisPrefix      string `mapstructure:"redis-prefix"`
	RedisMaxReceived int64  `mapstructure:"redis-max-received"`
	RedisSeed        bool   `mapstructure:"redis-seed"`

	GlobalHandshakes  int           `mapstructure:"global-handshakes"`
	PerPeerHandshakes int           `mapstructure:"per-peer-handshakes"`
	PerIPRequests     int           `mapstructure:"per-ip-requests"`
	RateBurst         int           `mapstructure:"rate-burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup-interval"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown-timeout"`
}

func registerFlags(fs *pflag.FlagSet) {
	iv := registry.DefaultIntervals()
	emit := emitter.DefaultOptions("")
	fs.String("config", "", "optional YAML config file")
	fs.String("listen", ":54321", "local API and socket listen address")
	fs.String("metrics", ":9100", "metrics, health and dashboard listen address")
	fs.Bool("debug", false, "enable debug logs")

	fs.Bool("tls", false, "serve the local API over TLS")
	fs.String("tls-cert", "", "TLS certificate file path")
	fs.String("tls-key", "", "TLS private key file path")

	fs.Int64("max-frame-size", 1<<20, "maximum inbound WebSocket message size in bytes")
	fs.Duration("write-timeout", 10*time.Second, "deadline for a single socket write")

	fs.Int("retry-budget", registry.DefaultRetryBudget, "retransmissions before an unacknowledged connection is closed")
	fs.Bool("ignore-control-ack", false, "keep pending control signals until exhaustion even when acknowledged")
	fs.Duration("message-retry", iv.MessageRetry, "message retry tick")
	fs.Duration("control-retry", iv.ControlRetry, "control retry tick")
	fs.Duration("control-liveness", iv.ControlLiveness, "control liveness tick")
	fs.Duration("message-liveness", iv.MessageLiveness, "message liveness tick")

	fs.String("emit-peer", "", "container id the periodic emitter sends to (empty disables it)")
	fs.Duration("emit-message-interval", emit.MessageInterval, "delay between emitted sample messages")
	fs.Duration("emit-control-interval", emit.ControlInterval, "delay between emitted control signals")

	fs.String("catalog", "", "sample message catalog, JSON or YAML (e.g. messages.json)")
	fs.String("received-log", "", "append-only JSON lines log of received messages (empty logs only)")
	fs.String("container-config", "", "JSON document served on /v2/config/get, e.g. containerconfig.json (empty serves {})")
	fs.Duration("record-timeout", 5*time.Second, "time limit for storing one received message")

	fs.String("redis-addr", "", "Redis address; if set, samples and received messages live in Redis")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database number")
	fs.String("redis-prefix", "fogsock", "Redis key prefix")
	fs.Int64("redis-max-received", 10000, "cap on the Redis received list (0 = unbounded)")
	fs.Bool("redis-seed", false, "replace the Redis samples with the catalog file on startup")

	fs.Int("global-handshakes", 0, "socket handshakes per second across all peers (0 = unlimited)")
	fs.Int("per-peer-handshakes", 2, "socket handshakes per second per container id (0 = unlimited)")
	fs.Int("per-ip-requests", 10, "local API requests per second per remote IP (0 = unlimited)")
	fs.Int("rate-burst", 5, "token bucket burst size")
	fs.Duration("cleanup-interval", time.Minute, "interval for dropping idle rate limit buckets")
	fs.Duration("shutdown-timeout", 5*time.Second, "grace period for HTTP shutdown")
}

// loadConfig merges flags, FOGSOCK_* environment and the optional config
// file, in that order of precedence.
func loadConfig(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}
	v.SetEnvPrefix("FOGSOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"message-retry":    c.MessageRetry,
		"control-retry":    c.ControlRetry,
		"control-liveness": c.ControlLiveness,
		"message-liveness": c.MessageLiveness,
		"cleanup-interval": c.CleanupInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.EmitPeer != "" && (c.EmitMessageInterval <= 0 || c.EmitControlInterval <= 0) {
		errs = append(errs, errors.New("emitter intervals must be positive"))
	}
	if c.RetryBudget < 1 {
		errs = append(errs, errors.New("retry-budget must be at least 1"))
	}
	if c.MaxFrameSize < 16 {
		errs = append(errs, errors.New("max-frame-size too small"))
	}
	if c.EnableTLS && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		errs = append(errs, errors.New("tls requires tls-cert and tls-key"))
	}
	return errors.Join(errs...)
}

func (c Config) intervals() registry.Intervals {
	return registry.Intervals{
		MessageRetry:    c.MessageRetry,
		ControlRetry:    c.ControlRetry,
		ControlLiveness: c.ControlLiveness,
		MessageLiveness: c.MessageLiveness,
	}
}

func (c Config) emitterOptions() emitter.Options {
	return emitter.Options{
		PeerID:          c.EmitPeer,
		MessageInterval: c.EmitMessageInterval,
		ControlInterval: c.EmitControlInterval,
	}
}

func (c Config) limits() ratelimit.Limits {
	return ratelimit.Limits{
		GlobalHandshakes:  c.GlobalHandshakes,
		PerPeerHandshakes: c.PerPeerHandshakes,
		PerIPRequests:     c.PerIPRequests,
		Burst:             c.RateBurst,
	}
}
