package jwt

import (
	"errors"
	"fmt"
	"time"
)

// Signing algorithms accepted by the verifier.
const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"
	AlgRS256 = "RS256"
	AlgRS384 = "RS384"
	AlgRS512 = "RS512"
	AlgPS256 = "PS256"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
	AlgEdDSA = "EdDSA"
)

const (
	defaultJWKSRefresh     = 15 * time.Minute
	defaultJWKSMinInterval = time.Minute
)

// Config represents token verification configuration.
type Config struct {
	// Issuer is the expected "iss" claim. Empty disables the check.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// Audience is the expected "aud" claim. Empty disables the check.
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// ClockSkew is the tolerance applied to exp, nbf and iat. Zero, the
	// default, rejects a token from the instant it expires.
	ClockSkew time.Duration `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`

	// RequiredClaims lists claims that must be present in addition to sub and exp.
	RequiredClaims []string `yaml:"requiredClaims,omitempty" json:"requiredClaims,omitempty"`

	// StaticKeys are locally configured verification keys.
	StaticKeys []StaticKey `yaml:"staticKeys,omitempty" json:"staticKeys,omitempty"`

	// JWKSUrl is a remote key set, refreshed in the background.
	JWKSUrl string `yaml:"jwksUrl,omitempty" json:"jwksUrl,omitempty"`

	// JWKSRefreshInterval is how often the remote key set is refreshed.
	JWKSRefreshInterval time.Duration `yaml:"jwksRefreshInterval,omitempty" json:"jwksRefreshInterval,omitempty"`
}

// StaticKey is a verification key held in configuration.
// Symmetric keys carry the shared secret as-is; asymmetric keys carry a PEM public key.
type StaticKey struct {
	KeyID     string `yaml:"keyId,omitempty" json:"keyId,omitempty"`
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	Key       string `yaml:"key" json:"key"`
}

// DefaultConfig returns a default verification configuration.
func DefaultConfig() Config {
	return Config{
		JWKSRefreshInterval: defaultJWKSRefresh,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.StaticKeys) == 0 && c.JWKSUrl == "" {
		return errors.New("jwt: at least one of staticKeys or jwksUrl must be configured")
	}
	if c.ClockSkew < 0 {
		return errors.New("jwt: clockSkew must be non-negative")
	}
	if c.JWKSRefreshInterval < 0 {
		return errors.New("jwt: jwksRefreshInterval must be non-negative")
	}
	for i, key := range c.StaticKeys {
		if err := key.validate(); err != nil {
			return fmt.Errorf("jwt: staticKeys[%d]: %w", i, err)
		}
	}
	return nil
}

func (k StaticKey) validate() error {
	if !isValidAlgorithm(k.Algorithm) {
		return fmt.Errorf("unsupported algorithm %q", k.Algorithm)
	}
	if k.Key == "" {
		return errors.New("key is required")
	}
	if isSymmetric(k.Algorithm) && len(k.Key) < 32 {
		return errors.New("symmetric key must be at least 32 bytes")
	}
	return nil
}

func isValidAlgorithm(alg string) bool {
	switch alg {
	case AlgHS256, AlgHS384, AlgHS512,
		AlgRS256, AlgRS384, AlgRS512, AlgPS256,
		AlgES256, AlgES384, AlgEdDSA:
		return true
	}
	return false
}

func isSymmetric(alg string) bool {
	return alg == AlgHS256 || alg == AlgHS384 || alg == AlgHS512
}

func (c *Config) effectiveJWKSRefresh() time.Duration {
	if c.JWKSRefreshInterval > 0 {
		return c.JWKSRefreshInterval
	}
	return defaultJWKSRefresh
}
