// Package config loads the runtime settings and the relay lists.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"nostr-relaypool/internal/pool"
	"nostr-relaypool/internal/relay"
	"nostr-relaypool/internal/store"
)

// Prefix for environment variables, e.g. RELAYPOOL_STORE.
const Prefix = "relaypool"

// Config holds the settings read from the environment.
// Each variable is also accepted without the prefix.
type Config struct {
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	RelaysConfig string `envconfig:"RELAYS_CONFIG" default:"config/relays.json"`

	Store       string `envconfig:"STORE" default:"file"`
	StorePath   string `envconfig:"STORE_PATH" default:"data/relays.json"`
	RedisURL    string `envconfig:"REDIS_URL"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"relaypool:"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	DialTimeout     time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`
	EmitGrace       time.Duration `envconfig:"EMIT_GRACE" default:"100ms"`
	SinkBuffer      int           `envconfig:"SINK_BUFFER" default:"256"`
	LedgerSize      int           `envconfig:"LEDGER_SIZE" default:"0"`
	Reconnect       bool          `envconfig:"RECONNECT" default:"false"`

	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Load reads the configuration from the environment. Callers apply their
// overrides and then call Validate.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the pool cannot run with.
func (c Config) Validate() error {
	switch c.Store {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("invalid store %q (want memory, file or redis)", c.Store)
	}
	if c.Store == "redis" && c.RedisURL == "" {
		return fmt.Errorf("store redis needs REDIS_URL")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.SinkBuffer < 0 || c.LedgerSize < 0 {
		return fmt.Errorf("sink buffer and ledger size must not be negative")
	}
	return nil
}

// StoreOptions returns the relay store settings.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.Store,
		Path:        c.StorePath,
		RedisURL:    c.RedisURL,
		RedisPrefix: c.RedisPrefix,
	}
}

// RelayOptions returns the websocket connection settings.
func (c Config) RelayOptions() relay.Options {
	opts := relay.DefaultOptions()
	opts.DialTimeout = c.DialTimeout
	opts.WriteTimeout = c.WriteTimeout
	return opts
}

// PoolOptions translates the settings into pool options.
func (c Config) PoolOptions() []pool.Option {
	opts := []pool.Option{
		pool.WithDialer(relay.NewDialer(c.RelayOptions())),
		pool.WithDialTimeout(c.DialTimeout),
		pool.WithShutdownTimeout(c.ShutdownTimeout),
		pool.WithEmitGrace(c.EmitGrace),
		pool.WithSinkBuffer(c.SinkBuffer),
		pool.WithLedgerSize(c.LedgerSize),
	}
	if c.Reconnect {
		opts = append(opts, pool.WithReconnect(relay.DefaultRetry()))
	}
	return opts
}
