package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avaguard/internal/auth/jwt"
	"github.com/vyrodovalexey/avaguard/internal/authz"
	"github.com/vyrodovalexey/avaguard/internal/authz/external"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/secrets"
	"github.com/vyrodovalexey/avaguard/internal/session"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig                `yaml:"server" json:"server"`
	Logging   observability.LogConfig     `yaml:"logging" json:"logging"`
	Tracing   observability.TracingConfig `yaml:"tracing" json:"tracing"`
	JWT       jwt.Config                  `yaml:"jwt" json:"jwt"`
	Session   session.Config              `yaml:"session" json:"session"`
	Authority external.Config             `yaml:"authority" json:"authority"`
	Cache     authz.Config                `yaml:"cache" json:"cache"`
	Vault     *secrets.Config             `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Address is the listen address.
	Address string `yaml:"address" json:"address"`

	// Mode is the gin mode: release, debug or test.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// MaxRequestTimeout caps the timeoutMs a caller may ask for.
	MaxRequestTimeout Duration `yaml:"maxRequestTimeout,omitempty" json:"maxRequestTimeout,omitempty"`

	// AdminToken guards the cache and relationship admin endpoints. It is
	// required in release mode; debug and test modes leave the endpoints
	// open when it is empty.
	AdminToken string `yaml:"adminToken,omitempty" json:"adminToken,omitempty"`
}

// DefaultServerConfig returns the default listener configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:           ":8080",
		Mode:              "release",
		ReadTimeout:       Duration(10 * time.Second),
		WriteTimeout:      Duration(30 * time.Second),
		IdleTimeout:       Duration(60 * time.Second),
		ShutdownTimeout:   Duration(15 * time.Second),
		MaxRequestTimeout: Duration(30 * time.Second),
	}
}

// Validate validates the listener configuration.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return errors.New("server.address is required")
	}
	switch c.Mode {
	case "", "release", "debug", "test":
	default:
		return fmt.Errorf("server.mode %q is not one of release, debug, test", c.Mode)
	}
	if (c.Mode == "" || c.Mode == "release") && c.AdminToken == "" {
		return errors.New("server.adminToken is required in release mode")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 || c.ShutdownTimeout < 0 || c.MaxRequestTimeout < 0 {
		return errors.New("server timeouts must be non-negative")
	}
	return nil
}

// DefaultConfig returns a configuration with every section at its default.
// JWT keys and the authority endpoint have no usable default.
func DefaultConfig() *Config {
	tracing := observability.TracingConfig{
		ServiceName:  "avaguard",
		SamplingRate: 1.0,
	}
	return &Config{
		Server:    DefaultServerConfig(),
		Logging:   observability.DefaultLogConfig(),
		Tracing:   tracing,
		JWT:       jwt.DefaultConfig(),
		Session:   session.DefaultConfig(),
		Authority: external.DefaultConfig(),
		Cache:     authz.DefaultConfig(),
	}
}

// Validate validates every section.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.JWT.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("jwt: %w", err))
	}
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Authority.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Vault.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ResolveSecrets replaces secret references with their values. Only fields
// that carry credentials are considered.
func (c *Config) ResolveSecrets(ctx context.Context, r secrets.Resolver) error {
	targets := make([]*string, 0, len(c.JWT.StaticKeys)+5)
	targets = append(targets, &c.Server.AdminToken)
	for i := range c.JWT.StaticKeys {
		targets = append(targets, &c.JWT.StaticKeys[i].Key)
	}
	if c.Session.Redis != nil {
		targets = append(targets, &c.Session.Redis.Password)
	}
	if c.Session.Postgres != nil {
		targets = append(targets, &c.Session.Postgres.DSN)
	}
	if c.Authority.OpenFGA != nil {
		targets = append(targets, &c.Authority.OpenFGA.APIToken)
	}
	if c.Authority.OPA != nil {
		for k, v := range c.Authority.OPA.Headers {
			resolved, err := r.Resolve(ctx, v)
			if err != nil {
				return fmt.Errorf("authority.opa.headers.%s: %w", k, err)
			}
			c.Authority.OPA.Headers[k] = resolved
		}
	}

	if err := secrets.ResolveAll(ctx, r, targets...); err != nil {
		return fmt.Errorf("resolving secrets: %w", err)
	}
	return nil
}
