package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Option customizes how configuration is parsed.
type Option func(*env.Options)

// WithEnvironment parses from the given map instead of the process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(o *env.Options) {
		o.Environment = vars
	}
}

// WithRequiredIfNoDefault makes every field without envDefault mandatory.
func WithRequiredIfNoDefault() Option {
	return func(o *env.Options) {
		o.RequiredIfNoDef = true
	}
}

// Load parses environment variables into the provided struct.
// The struct should use `env` tags to define mappings.
//
// Example:
//
//	type Config struct {
//	    Port     int    `env:"STOREFRONT_HTTP_PORT" envDefault:"8090"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any, opts ...Option) error {
	var o env.Options
	for _, opt := range opts {
		opt(&o)
	}
	if err := env.ParseWithOptions(cfg, o); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
