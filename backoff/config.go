package backoff

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the environment representation of the backoff settings. Field
// names are read with the prefix passed to [LoadConfig], for example
// ORDERS_BACKOFF_POLICY with prefix "ORDERS_".
type Config struct {
	Policy                          string  `env:"BACKOFF_POLICY"                             envDefault:"half_jitter"`
	InitialVisibilityTimeoutSeconds int32   `env:"BACKOFF_INITIAL_VISIBILITY_TIMEOUT_SECONDS" envDefault:"100"`
	Multiplier                      float64 `env:"BACKOFF_MULTIPLIER"                         envDefault:"2"`
	MaxVisibilityTimeoutSeconds     int32   `env:"BACKOFF_MAX_VISIBILITY_TIMEOUT_SECONDS"     envDefault:"43200"`
}

// LoadConfig reads a [Config] from environment variables with the given
// prefix. Unset variables take their documented defaults.
func LoadConfig(prefix string) (*Config, error) {
	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("failed to parse backoff config from environment: %w", err)
	}

	return cfg, nil
}

// Options converts the configuration into calculator options. Values are
// validated by [New], not here; only the policy name is checked.
func (c *Config) Options() ([]Option, error) {
	policy, err := ParsePolicy(c.Policy)
	if err != nil {
		return nil, err
	}

	return []Option{
		WithPolicy(policy),
		WithInitialVisibilityTimeout(c.InitialVisibilityTimeoutSeconds),
		WithMultiplier(c.Multiplier),
		WithMaxVisibilityTimeout(c.MaxVisibilityTimeoutSeconds),
	}, nil
}

// NewFromEnv builds a Calculator from environment variables with the given
// prefix. Extra options are applied after the environment settings, which
// lets tests inject a [RandomSource].
func NewFromEnv(prefix string, opts ...Option) (*Calculator, error) {
	cfg, err := LoadConfig(prefix)
	if err != nil {
		return nil, err
	}

	envOpts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	return New(append(envOpts, opts...)...)
}
