// Package config loads the server's runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // TAB_TIMEZONE must resolve on hosts without a zoneinfo database

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config holds runtime configuration for the server.
type Config struct {
	Addr     string `envconfig:"ADDR" default:":8080"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/tab.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Timezone months are cut in for reports, and the zone of "now".
	Timezone string `envconfig:"TIMEZONE" default:"UTC"`

	DustThreshold string   `envconfig:"DUST_THRESHOLD" default:"0.005"`
	CORSOrigins   []string `envconfig:"CORS_ORIGINS" default:"*"`

	// RateLimit is requests per minute per client IP; 0 turns it off.
	RateLimit int `envconfig:"RATE_LIMIT" default:"600"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads TAB_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("tab", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values envconfig can't.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen address must be provided")
	}
	if c.DBPath == "" {
		return errors.New("database path must be provided")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", c.RateLimit)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Dust(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Dust parses DustThreshold.
func (c *Config) Dust() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.DustThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid dust threshold %q: %w", c.DustThreshold, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("dust threshold must not be negative, got %s", d)
	}
	return d, nil
}
