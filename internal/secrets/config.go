package secrets

import (
	"errors"
	"time"
)

const defaultTimeout = 10 * time.Second

// Config represents Vault connection configuration.
type Config struct {
	// Enabled enables reference resolution.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Address is the Vault server address.
	Address string `yaml:"address" json:"address"`

	// Namespace is the Vault namespace (Enterprise feature).
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// Token authenticates to Vault.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// Timeout bounds each Vault request.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Address == "" {
		return errors.New("vault.address is required when vault is enabled")
	}
	if c.Token == "" {
		return errors.New("vault.token is required when vault is enabled")
	}
	if c.Timeout < 0 {
		return errors.New("vault.timeout must be non-negative")
	}
	return nil
}
