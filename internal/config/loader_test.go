package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaguard/internal/authz/external"
	"github.com/vyrodovalexey/avaguard/internal/session"
)

const sampleConfig = `
server:
  address: ":9090"
  adminToken: admin-secret
  readTimeout: 5s
  shutdownTimeout: 20s
logging:
  level: debug
  format: console
jwt:
  issuer: https://issuer.example.test
  clockSkew: 10s
  staticKeys:
    - algorithm: HS256
      key: ${AVAGUARD_CFG_TEST_SECRET:-0123456789abcdef0123456789abcdef}
session:
  backend: redis
  fingerprint: blake3
  redis:
    url: redis://localhost:6379/0
authority:
  type: openfga
  timeout: 750ms
  openfga:
    apiUrl: http://openfga:8080
    storeId: 01ARZ3NDEKTSV4RRFFQ69G5FAV
  circuitBreaker:
    enabled: true
    minRequests: 20
cache:
  enabled: true
  ttl: 10s
`

func TestLoad(t *testing.T) {
	t.Parallel()

	// Arrange
	path := filepath.Join(t.TempDir(), "avaguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	// Act
	cfg, err := Load(path)

	// Assert
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout.Duration(), "unset fields keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10*time.Second, cfg.JWT.ClockSkew)
	require.Len(t, cfg.JWT.StaticKeys, 1)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.JWT.StaticKeys[0].Key)
	assert.Equal(t, session.BackendRedis, cfg.Session.Backend)
	assert.Equal(t, "blake3", cfg.Session.Fingerprint)
	assert.Equal(t, 2*time.Second, cfg.Session.LookupTimeout)
	assert.Equal(t, external.TypeOpenFGA, cfg.Authority.Type)
	assert.Equal(t, 750*time.Millisecond, cfg.Authority.Timeout)
	assert.Equal(t, uint32(20), cfg.Authority.CircuitBreaker.MinRequests)
	assert.Equal(t, 10*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Equal(t, 5*time.Second, cfg.Cache.RequestTimeout)
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/path/avaguard.yaml")

	assert.Error(t, err)
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("server: [unterminated"))

	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()

	// Act
	cfg, err := LoadFromReader(strings.NewReader("   \n"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("server:\n  readTimeout: soon\n"))

	assert.Error(t, err)
}

// Not parallel: uses t.Setenv.
func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("AVAGUARD_CFG_TEST_HOST", "authz.internal")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "set variable", input: "url: http://${AVAGUARD_CFG_TEST_HOST}:8080", want: "url: http://authz.internal:8080"},
		{name: "set variable ignores default", input: "${AVAGUARD_CFG_TEST_HOST:-other}", want: "authz.internal"},
		{name: "unset with default", input: "${AVAGUARD_CFG_TEST_UNSET:-fallback}", want: "fallback"},
		{name: "unset without default", input: "x${AVAGUARD_CFG_TEST_UNSET}y", want: "xy"},
		{name: "escaped dollar", input: "price: $${AVAGUARD_CFG_TEST_HOST}", want: "price: ${AVAGUARD_CFG_TEST_HOST}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.input))
		})
	}
}

// Not parallel: uses t.Setenv.
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AVAGUARD_CFG_TEST_SECRET", "fedcba9876543210fedcba9876543210")

	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))

	require.NoError(t, err)
	assert.Equal(t, "fedcba9876543210fedcba9876543210", cfg.JWT.StaticKeys[0].Key)
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, "vault:") {
		return value, nil
	}
	v, ok := m[value]
	if !ok {
		return "", errors.New("unknown reference " + value)
	}
	return v, nil
}

func TestConfig_ResolveSecrets(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	cfg.JWT.StaticKeys[0].Key = "vault:secret/avaguard/jwt#hmac"
	cfg.Session.Redis.Password = "vault:secret/avaguard/redis#password"
	cfg.Authority.OpenFGA.APIToken = "plain-token"
	resolver := mapResolver{
		"vault:secret/avaguard/jwt#hmac":       "resolved-hmac",
		"vault:secret/avaguard/redis#password": "resolved-password",
	}

	// Act
	err = cfg.ResolveSecrets(context.Background(), resolver)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "resolved-hmac", cfg.JWT.StaticKeys[0].Key)
	assert.Equal(t, "resolved-password", cfg.Session.Redis.Password)
	assert.Equal(t, "plain-token", cfg.Authority.OpenFGA.APIToken)
}

func TestConfig_ResolveSecrets_Error(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	cfg.Authority.OpenFGA.APIToken = "vault:secret/missing#token"

	// Act
	err = cfg.ResolveSecrets(context.Background(), mapResolver{})

	// Assert
	assert.ErrorContains(t, err, "resolving secrets")
}
