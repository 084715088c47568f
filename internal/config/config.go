// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	DB      DBConfig      `mapstructure:"db"`
	Places  PlacesConfig  `mapstructure:"places"`
	Worker  WorkerConfig  `mapstructure:"worker"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	ConnLifeMins int    `mapstructure:"conn_life_minutes"`
}

// PlacesConfig governs the place-search provider client.
type PlacesConfig struct {
	APIKey                string  `mapstructure:"api_key"`
	BaseURL               string  `mapstructure:"base_url"`
	MaxResultsPerSearch   int     `mapstructure:"max_results_per_search"`
	RequestsPerSecond     float64 `mapstructure:"requests_per_second"`
	PageTokenDelaySeconds int     `mapstructure:"page_token_delay_seconds"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
}

// WorkerConfig governs the scan queue and execution loop.
type WorkerConfig struct {
	QueueDepth           int `mapstructure:"queue_depth"`
	FlushEvery           int `mapstructure:"flush_every"`
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_life_minutes", 30)
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api")
	// The provider returns at most 60 results per text search (3 pages of 20).
	v.SetDefault("places.max_results_per_search", 60)
	v.SetDefault("places.requests_per_second", 10.0)
	v.SetDefault("places.page_token_delay_seconds", 2)
	v.SetDefault("places.request_timeout_seconds", 15)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.flush_every", 10)
	v.SetDefault("worker.shutdown_grace_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Places.MaxResultsPerSearch <= 0 {
		return fmt.Errorf("places.max_results_per_search must be > 0")
	}
	if c.Places.RequestsPerSecond <= 0 {
		return fmt.Errorf("places.requests_per_second must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return fmt.Errorf("worker.queue_depth must be > 0")
	}
	if c.Worker.FlushEvery <= 0 {
		return fmt.Errorf("worker.flush_every must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout returns the per-call provider deadline.
func (c PlacesConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// PageTokenDelay returns the pause required before consuming a page token.
func (c PlacesConfig) PageTokenDelay() time.Duration {
	return time.Duration(c.PageTokenDelaySeconds) * time.Second
}

// ShutdownGrace returns how long shutdown waits for the in-flight scan.
func (c WorkerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}
