// Package config provides configuration for the pipeline service.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Registry   RegistryConfig
	Live       LiveConfig
	Supervisor SupervisorConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`

	// Busy-retry policy for single-writer contention. BackoffMs is the wait
	// schedule between attempts; total attempts = len(BackoffMs) + 1.
	BackoffMs []int `mapstructure:"backoff_ms"`

	// History pagination bounds.
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`

	// Upper bound on the raw-event scan used to reconstruct summaries when
	// the summary table is empty.
	FallbackScanWindow int `mapstructure:"fallback_scan_window"`
}

type RegistryConfig struct {
	MaxRuns      int           `mapstructure:"max_runs"`
	MaxTailLines int           `mapstructure:"max_tail_lines"`
	CompletedTTL time.Duration `mapstructure:"completed_ttl"`
}

type LiveConfig struct {
	ReplayBatch  int           `mapstructure:"replay_batch"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

type SupervisorConfig struct {
	// FallbackShell is tried once when the primary command is missing.
	FallbackShell string `mapstructure:"fallback_shell"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads configuration from an optional config file and the environment,
// with defaults for every knob.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/runforge/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("RUNFORGE")
	viper.AutomaticEnv()

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("store.dsn", "file:runforge.db?cache=shared&mode=rwc")
	viper.SetDefault("store.backoff_ms", []int{20, 50, 100, 180, 300})
	viper.SetDefault("store.default_limit", 100)
	viper.SetDefault("store.max_limit", 500)
	viper.SetDefault("store.fallback_scan_window", 1000)
	viper.SetDefault("registry.max_runs", 50)
	viper.SetDefault("registry.max_tail_lines", 200)
	viper.SetDefault("registry.completed_ttl", "30m")
	viper.SetDefault("live.replay_batch", 100)
	viper.SetDefault("live.ping_interval", "30s")
	viper.SetDefault("live.write_timeout", "10s")
	viper.SetDefault("live.read_timeout", "60s")
	viper.SetDefault("live.send_buffer", 256)
	viper.SetDefault("supervisor.fallback_shell", "/bin/sh")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Backoff returns the busy-retry wait schedule as durations.
func (c StoreConfig) Backoff() []time.Duration {
	out := make([]time.Duration, 0, len(c.BackoffMs))
	for _, ms := range c.BackoffMs {
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out
}
