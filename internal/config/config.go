// Package config loads the top-level YAML configuration for the
// obstrace demo service: the collector's label and harvest cadence
// plus its notify and health sub-configs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obstrace/obstrace/internal/health"
	"github.com/obstrace/obstrace/internal/notify"
)

// Config is the top-level configuration for the obstrace demo service.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Label identifies the collector instance, echoed into every
	// notified event.
	Label string `yaml:"label"`

	// EnabledAtStart controls whether the collector's gate opens
	// immediately on startup.
	EnabledAtStart bool `yaml:"enabled_at_start"`

	// HarvestInterval is how often the demo service calls
	// CreateCollection. Defaults to 5s.
	HarvestInterval time.Duration `yaml:"harvest_interval"`

	// Notify configures the subscriber bus (HTTP export of flattened
	// events).
	Notify notify.Config `yaml:"notify"`

	// Health configures the Prometheus health metrics server.
	Health health.Config `yaml:"health"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		Label:           "obstrace",
		EnabledAtStart:  true,
		HarvestInterval: 5 * time.Second,
		Health: health.Config{
			Addr: ":9090",
		},
	}
}

// Load reads and parses a YAML configuration file, applying defaults
// to anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.Notify.HTTP.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and internal
// consistency.
func (c *Config) Validate() error {
	if c.Label == "" {
		return fmt.Errorf("label is required")
	}

	if c.HarvestInterval <= 0 {
		return fmt.Errorf("harvest_interval must be positive")
	}

	if err := c.Notify.HTTP.Validate(); err != nil {
		return fmt.Errorf("notify.http: %w", err)
	}

	return nil
}
