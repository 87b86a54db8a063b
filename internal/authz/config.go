package authz

import (
	"errors"
	"time"
)

// Defaults.
const (
	DefaultTTL            = 300 * time.Second
	DefaultMaxEntries     = 10000
	DefaultSweepInterval  = 60 * time.Second
	DefaultRequestTimeout = 5 * time.Second
)

// Config configures the decision cache and the coordinator.
type Config struct {
	// Enabled turns decision caching on. Single-flight applies either way.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TTL is how long a decision stays authoritative.
	TTL time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// MaxEntries bounds the number of cached decisions.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// SweepInterval is the background purge period. Zero disables the sweep.
	SweepInterval time.Duration `yaml:"sweepInterval,omitempty" json:"sweepInterval,omitempty"`

	// RequestTimeout bounds the engine call when the caller gives no timeout.
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty" json:"requestTimeout,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		TTL:            DefaultTTL,
		MaxEntries:     DefaultMaxEntries,
		SweepInterval:  DefaultSweepInterval,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Enabled {
		if c.TTL <= 0 {
			return errors.New("cache.ttl must be positive when the cache is enabled")
		}
		if c.MaxEntries <= 0 {
			return errors.New("cache.maxEntries must be positive when the cache is enabled")
		}
	}
	if c.SweepInterval < 0 {
		return errors.New("cache.sweepInterval must be non-negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("cache.requestTimeout must be non-negative")
	}
	return nil
}
