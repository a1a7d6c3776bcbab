// Package config loads the broker's configuration the way the
// teacher's config.go does: env vars override a .env file, which
// overrides struct-tag defaults, validated before use.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds everything cmd/odin-broker needs to start.
type Config struct {
	Addr string `env:"ODIN_ADDR" envDefault:"0.0.0.0"`
	Port int    `env:"ODIN_PORT" envDefault:"4222"`

	Workers int `env:"ODIN_WORKERS" envDefault:"4"`

	AccountsFile string `env:"ODIN_ACCOUNTS_FILE" envDefault:""`

	MetricsAddr string `env:"ODIN_METRICS_ADDR" envDefault:":9222"`

	AcceptIPRate      float64 `env:"ODIN_ACCEPT_IP_RATE" envDefault:"1.0"`
	AcceptIPBurst     int     `env:"ODIN_ACCEPT_IP_BURST" envDefault:"10"`
	AcceptGlobalRate  float64 `env:"ODIN_ACCEPT_GLOBAL_RATE" envDefault:"50.0"`
	AcceptGlobalBurst int     `env:"ODIN_ACCEPT_GLOBAL_BURST" envDefault:"300"`

	LogLevel  string `env:"ODIN_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ODIN_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from the environment, an optional .env
// file, and struct-tag defaults, in that priority order, then
// validates it. The logger parameter is optional diagnostic output for
// the .env-file lookup itself, since the real logger isn't built yet
// at this point in startup.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ODIN_ADDR is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("ODIN_PORT must be 1-65535, got %d", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("ODIN_WORKERS must be > 0, got %d", c.Workers)
	}
	if c.AcceptIPRate <= 0 {
		return fmt.Errorf("ODIN_ACCEPT_IP_RATE must be > 0, got %.2f", c.AcceptIPRate)
	}
	if c.AcceptGlobalRate <= 0 {
		return fmt.Errorf("ODIN_ACCEPT_GLOBAL_RATE must be > 0, got %.2f", c.AcceptGlobalRate)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("ODIN_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("ODIN_LOG_FORMAT must be one of: json, console (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig emits the loaded configuration as one structured line, the
// way the teacher logs startup config.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Int("port", c.Port).
		Int("workers", c.Workers).
		Str("accounts_file", c.AccountsFile).
		Str("metrics_addr", c.MetricsAddr).
		Float64("accept_ip_rate", c.AcceptIPRate).
		Int("accept_ip_burst", c.AcceptIPBurst).
		Float64("accept_global_rate", c.AcceptGlobalRate).
		Int("accept_global_burst", c.AcceptGlobalBurst).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
