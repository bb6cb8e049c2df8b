package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds client runtime configuration.
type Config struct {
	Server          string        `mapstructure:"server"`
	ID              string        `mapstructure:"id"`
	PublishInterval time.Duration `mapstructure:"publish-interval"`
	PublishPayload  string        `mapstructure:"publish-payload"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect-delay"`
	FetchConfig     bool          `mapstructure:"fetch-config"`
	Debug           bool          `mapstructure:"debug"`
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "optional YAML config file")
	fs.String("server", "ws://127.0.0.1:54321", "server base URL (ws:// or wss://)")
	fs.String("id", "demo", "container id to register as")
	fs.Duration("publish-interval", 0, "send a MESSAGE this often (0 disables)")
	fs.String("publish-payload", "hello from fogsock-client", "payload of published messages")
	fs.Duration("reconnect-delay", 2*time.Second, "wait between reconnect attempts")
	fs.Bool("fetch-config", true, "fetch the container config whenever a control signal arrives")
	fs.Bool("debug", false, "enable debug logs")
}

func loadConfig(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}
	v.SetEnvPrefix("FOGSOCK_CLIENT")
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
	if cfg.ID == "" {
		return Config{}, fmt.Errorf("id is required")
	}
	if !strings.HasPrefix(cfg.Server, "ws://") && !strings.HasPrefix(cfg.Server, "wss://") {
		return Config{}, fmt.Errorf("server must be a ws:// or wss:// URL, got %q", cfg.Server)
	}
	cfg.Server = strings.TrimSuffix(cfg.Server, "/")
	return cfg, nil
}

func (c Config) socketURL(channel string) string {
	return c.Server + "/v2/" + channel + "/socket/id/" + c.ID
}

// configURL is the HTTP form of the server base URL.
func (c Config) configURL() string {
	return "http" + strings.TrimPrefix(c.Server, "ws") + "/v2/config/get"
}
