// Package config provides configuration structures for fleetq.
package config

import (
	"fmt"
	"time"

	"github.com/fleetq/fleetq/pkg/models"
)

// Config represents the fleetq configuration.
type Config struct {
	// LogLevel controls diagnostic verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// ConnectTimeout bounds every connection attempt.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// CommandTimeout bounds every guarded query execution.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`

	// ProbeWidth caps how many connectivity probes run at once.
	ProbeWidth int64 `mapstructure:"probe_width" yaml:"probe_width"`

	// Metrics configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Endpoints is the ordered fleet this run targets.
	Endpoints []models.Endpoint `mapstructure:"endpoints" yaml:"endpoints"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	if c.ProbeWidth <= 0 {
		c.ProbeWidth = 5
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for i, endpoint := range c.Endpoints {
		if endpoint.ID == "" {
			return fmt.Errorf("endpoint %d: id is required", i+1)
		}
		if seen[endpoint.ID] {
			return fmt.Errorf("endpoint %d: duplicate id %q", i+1, endpoint.ID)
		}
		seen[endpoint.ID] = true

		if endpoint.Host == "" {
			return fmt.Errorf("endpoint %q: host is required", endpoint.ID)
		}
		if endpoint.Port < 1 || endpoint.Port > 65535 {
			return fmt.Errorf("endpoint %q: port %d is out of range 1-65535", endpoint.ID, endpoint.Port)
		}
		if endpoint.Database == "" {
			return fmt.Errorf("endpoint %q: database is required", endpoint.ID)
		}
		if endpoint.Username == "" {
			return fmt.Errorf("endpoint %q: username is required", endpoint.ID)
		}
	}

	return nil
}

// DefaultConfig returns a default configuration without endpoints.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 30 * time.Second,
		ProbeWidth:     5,
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}
