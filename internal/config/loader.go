package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if CROWDLABEL_CONFIG is set
//  3. env (prefix CROWDLABEL_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("CROWDLABEL_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: CROWDLABEL_ADDR, CROWDLABEL_REDUNDANCY, ...
	// Map env keys like CROWDLABEL_RESERVATION_TTL_S -> reservation_ttl_s
	// (flat keys, underscores kept to match koanf tags on the struct).
	envProvider := env.Provider("CROWDLABEL_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "crowdlabel_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Redundancy < 1:
		return fmt.Errorf("%w: redundancy must be at least 1", ErrInvalidConfig)
	case c.ReservationTTLSeconds < 1:
		return fmt.Errorf("%w: reservation_ttl_s must be positive", ErrInvalidConfig)
	case c.SweepIntervalSeconds < 1:
		return fmt.Errorf("%w: sweep_interval_s must be positive", ErrInvalidConfig)
	case c.DefaultBounty <= 0:
		return fmt.Errorf("%w: default_bounty must be positive", ErrInvalidConfig)
	case c.MaxBounty < c.DefaultBounty:
		return fmt.Errorf("%w: max_bounty must be at least default_bounty", ErrInvalidConfig)
	case c.JournalSize < 1:
		return fmt.Errorf("%w: journal_size must be positive", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn required for %s driver", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
