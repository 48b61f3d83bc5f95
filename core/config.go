package core

import (
	"fmt"
	"strings"
	"time"
)

type SweepConfig struct {
	// FloorInterval bounds how long the scheduler may sleep even with no
	// known upcoming expiry.
	FloorInterval time.Duration `koanf:"floor_interval" mapstructure:"floor_interval"`
	// TokenRetention keeps terminal verification attempts around for
	// audit before physical deletion.
	TokenRetention time.Duration `koanf:"token_retention" mapstructure:"token_retention"`
	// PassGrace delays physical deletion of expired passes. Zero is
	// correct; non-zero is audit retention only.
	PassGrace time.Duration `koanf:"pass_grace" mapstructure:"pass_grace"`
}

type Config struct {
	ServiceName   string        `koanf:"service_name" mapstructure:"service_name"`
	VanityBaseURL string        `koanf:"vanity_base_url" mapstructure:"vanity_base_url"`
	TokenTTL      time.Duration `koanf:"token_ttl" mapstructure:"token_ttl"`
	DefaultScope  string        `koanf:"default_scope" mapstructure:"default_scope"`
	Sweep         SweepConfig   `koanf:"sweep" mapstructure:"sweep"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "callpass",
		VanityBaseURL: "https://vpass.link",
		TokenTTL:      15 * time.Minute,
		DefaultScope:  string(DefaultPassScope),
		Sweep: SweepConfig{
			FloorInterval:  time.Hour,
			TokenRetention: 24 * time.Hour,
			PassGrace:      0,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.VanityBaseURL) == "" {
		return fmt.Errorf("core: vanity_base_url is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("core: token_ttl must be positive")
	}
	if _, err := ParsePassScope(c.DefaultScope); err != nil {
		return fmt.Errorf("core: default_scope: %w", err)
	}
	if c.Sweep.FloorInterval <= 0 {
		return fmt.Errorf("core: sweep.floor_interval must be positive")
	}
	if c.Sweep.TokenRetention < 0 || c.Sweep.PassGrace < 0 {
		return fmt.Errorf("core: sweep retention values must not be negative")
	}
	return nil
}
