// Package config loads the bankd configuration: built-in defaults overlaid
// by an optional TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Store      StoreConfig      `toml:"store"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Retry      RetryConfig      `toml:"retry"`
	Reconciler ReconcilerConfig `toml:"reconciler"`
}

type ServerConfig struct {
	Addr        string `toml:"addr"`
	MaxInflight int    `toml:"max_inflight"`
}

type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `toml:"backend"`
	// Path is the database file for the sqlite backend.
	Path string `toml:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `toml:"dsn"`
	// Migrate runs schema migrations at startup (postgres only; sqlite
	// always migrates).
	Migrate bool `toml:"migrate"`
}

type PipelineConfig struct {
	PollInterval duration `toml:"poll_interval"`
	BatchSize    int      `toml:"batch_size"`
}

type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	Base        duration `toml:"base"`
}

type ReconcilerConfig struct {
	Interval         duration `toml:"interval"`
	TransferDeadline duration `toml:"transfer_deadline"`
}

// duration lets TOML carry values like "250ms" or "1m".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) Std() time.Duration { return time.Duration(d) }

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MaxInflight: 64,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "bankaccounts.db",
		},
		Pipeline: PipelineConfig{
			PollInterval: duration(50 * time.Millisecond),
			BatchSize:    256,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			Base:        duration(25 * time.Millisecond),
		},
		Reconciler: ReconcilerConfig{
			Interval:         duration(time.Minute),
			TransferDeadline: duration(30 * time.Second),
		},
	}
}

// Load returns defaults overlaid with the TOML file at path. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path required for sqlite backend")
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn required for postgres backend")
	}
	return nil
}
