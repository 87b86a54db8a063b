package session

import (
	"errors"
	"fmt"
	"time"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const defaultRedisKeyPrefix = "avaguard:session:"

// Config configures the session registry.
type Config struct {
	// Backend selects the session store: memory, redis or postgres.
	Backend string `yaml:"backend" json:"backend"`

	// Fingerprint selects the token digest: sha256, blake2b or blake3.
	Fingerprint string `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`

	// LookupTimeout bounds a single store lookup. Zero means no bound beyond the caller's.
	LookupTimeout time.Duration `yaml:"lookupTimeout,omitempty" json:"lookupTimeout,omitempty"`

	// CleanupInterval runs DeleteExpired periodically when positive.
	CleanupInterval time.Duration `yaml:"cleanupInterval,omitempty" json:"cleanupInterval,omitempty"`

	Redis    *RedisConfig    `yaml:"redis,omitempty" json:"redis,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty" json:"postgres,omitempty"`
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	URL         string        `yaml:"url" json:"url"`
	Password    string        `yaml:"password,omitempty" json:"password,omitempty"`
	KeyPrefix   string        `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
	PoolSize    int           `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	DialTimeout time.Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`
	ReadTimeout time.Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
}

// PostgresConfig configures the Postgres session store.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns,omitempty" json:"maxOpenConns,omitempty"`
	MaxIdleConns    int           `yaml:"maxIdleConns,omitempty" json:"maxIdleConns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime,omitempty" json:"connMaxLifetime,omitempty"`
}

// DefaultConfig returns an in-memory SHA-256 configuration.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendMemory,
		Fingerprint:   AlgorithmSHA256,
		LookupTimeout: 2 * time.Second,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := NewFingerprinter(c.Fingerprint); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if c.LookupTimeout < 0 || c.CleanupInterval < 0 {
		return errors.New("session: lookupTimeout and cleanupInterval must be non-negative")
	}

	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis == nil || c.Redis.URL == "" {
			return errors.New("session: redis.url is required for the redis backend")
		}
	case BackendPostgres:
		if c.Postgres == nil || c.Postgres.DSN == "" {
			return errors.New("session: postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("session: unsupported backend %q", c.Backend)
	}
	return nil
}

// OpenStore opens the store selected by cfg.
func OpenStore(cfg *Config) (Store, error) {
	switch cfg.Backend {
	case BackendRedis:
		return OpenRedis(cfg.Redis)
	case BackendPostgres:
		return OpenPostgres(cfg.Postgres)
	case BackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Backend)
	}
}
