package external

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Engine types.
const (
	TypeOpenFGA = "openfga"
	TypeOPA     = "opa"
)

// DefaultTimeout bounds a check when the caller passes no timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the authorization client.
type Config struct {
	// Type selects the engine: openfga or opa.
	Type string `yaml:"type" json:"type"`

	// Timeout is the default per-check timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	OpenFGA        *OpenFGAConfig        `yaml:"openfga,omitempty" json:"openfga,omitempty"`
	OPA            *OPAConfig            `yaml:"opa,omitempty" json:"opa,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
	RateLimit      *RateLimitConfig      `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// OpenFGAConfig configures the OpenFGA backend.
type OpenFGAConfig struct {
	APIURL               string `yaml:"apiUrl" json:"apiUrl"`
	StoreID              string `yaml:"storeId" json:"storeId"`
	AuthorizationModelID string `yaml:"authorizationModelId,omitempty" json:"authorizationModelId,omitempty"`
	APIToken             string `yaml:"apiToken,omitempty" json:"apiToken,omitempty"`

	// SubjectType prefixes bare subject identifiers, e.g. "user" gives "user:42".
	SubjectType string `yaml:"subjectType,omitempty" json:"subjectType,omitempty"`
}

// OPAConfig configures the OPA backend.
type OPAConfig struct {
	URL     string            `yaml:"url" json:"url"`
	Policy  string            `yaml:"policy" json:"policy"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// CircuitBreakerConfig configures the breaker in front of the engine.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MinRequests uint32        `yaml:"minRequests,omitempty" json:"minRequests,omitempty"`
	Ratio       float64       `yaml:"ratio,omitempty" json:"ratio,omitempty"`
	OpenTimeout time.Duration `yaml:"openTimeout,omitempty" json:"openTimeout,omitempty"`
	HalfOpenMax uint32        `yaml:"halfOpenMax,omitempty" json:"halfOpenMax,omitempty"`
}

// RateLimitConfig caps the rate of checks sent to the engine.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	RPS     float64 `yaml:"rps" json:"rps"`
	Burst   int     `yaml:"burst" json:"burst"`
}

// DefaultConfig returns an OpenFGA configuration with the default timeout.
func DefaultConfig() Config {
	return Config{
		Type:    TypeOpenFGA,
		Timeout: DefaultTimeout,
	}
}

// EffectiveTimeout returns Timeout or DefaultTimeout.
func (c *Config) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return errors.New("authority: timeout must be non-negative")
	}

	switch c.Type {
	case TypeOpenFGA:
		if c.OpenFGA == nil {
			return errors.New("authority: openfga configuration is required")
		}
		if err := validateURL(c.OpenFGA.APIURL); err != nil {
			return fmt.Errorf("authority: openfga.apiUrl: %w", err)
		}
		if c.OpenFGA.StoreID == "" {
			return errors.New("authority: openfga.storeId is required")
		}
	case TypeOPA:
		if c.OPA == nil {
			return errors.New("authority: opa configuration is required")
		}
		if err := validateURL(c.OPA.URL); err != nil {
			return fmt.Errorf("authority: opa.url: %w", err)
		}
		if c.OPA.Policy == "" {
			return errors.New("authority: opa.policy is required")
		}
	default:
		return fmt.Errorf("authority: unsupported type %q", c.Type)
	}

	if cb := c.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.Ratio < 0 || cb.Ratio > 1 {
			return errors.New("authority: circuitBreaker.ratio must be within [0, 1]")
		}
	}
	if rl := c.RateLimit; rl != nil && rl.Enabled {
		if rl.RPS <= 0 || rl.Burst <= 0 {
			return errors.New("authority: rateLimit.rps and rateLimit.burst must be positive")
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}
