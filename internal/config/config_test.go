package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avaguard/internal/auth/jwt"
	"github.com/vyrodovalexey/avaguard/internal/authz/external"
	"github.com/vyrodovalexey/avaguard/internal/secrets"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.AdminToken = "admin-secret"
	cfg.JWT.StaticKeys = []jwt.StaticKey{{Algorithm: jwt.AlgHS256, Key: "0123456789abcdef0123456789abcdef"}}
	cfg.Authority.OpenFGA = &external.OpenFGAConfig{APIURL: "http://openfga:8080", StoreID: "01ARZ3NDEKTSV4RRFFQ69G5FAV"}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no jwt keys", mutate: func(c *Config) { c.JWT.StaticKeys = nil }, wantErr: "jwt"},
		{name: "no server address", mutate: func(c *Config) { c.Server.Address = "" }, wantErr: "server.address"},
		{name: "bad gin mode", mutate: func(c *Config) { c.Server.Mode = "loud" }, wantErr: "server.mode"},
		{name: "release mode without admin token", mutate: func(c *Config) { c.Server.AdminToken = "" }, wantErr: "server.adminToken"},
		{name: "empty mode without admin token", mutate: func(c *Config) { c.Server.Mode = ""; c.Server.AdminToken = "" }, wantErr: "server.adminToken"},
		{name: "debug mode without admin token", mutate: func(c *Config) { c.Server.Mode = "debug"; c.Server.AdminToken = "" }},
		{name: "negative timeout", mutate: func(c *Config) { c.Server.ReadTimeout = Duration(-time.Second) }, wantErr: "server timeouts"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "chatty" }, wantErr: "logging.level"},
		{name: "bad sampling", mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SamplingRate = 2 }, wantErr: "samplingRate"},
		{name: "bad session backend", mutate: func(c *Config) { c.Session.Backend = "etcd" }, wantErr: "session"},
		{name: "no authority endpoint", mutate: func(c *Config) { c.Authority.OpenFGA = nil }, wantErr: "authority"},
		{name: "bad cache ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }, wantErr: "cache.ttl"},
		{name: "vault without token", mutate: func(c *Config) { c.Vault = &secrets.Config{Enabled: true, Address: "http://vault"} }, wantErr: "vault.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			cfg := validConfig()
			tt.mutate(cfg)

			// Act
			err := cfg.Validate()

			// Assert
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDuration_YAMLAndJSON(t *testing.T) {
	t.Parallel()

	var viaYAML struct {
		D Duration `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`d: 1m30s`), &viaYAML))
	assert.Equal(t, 90*time.Second, viaYAML.D.Duration())

	var viaJSON struct {
		D Duration `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"250ms"}`), &viaJSON))
	assert.Equal(t, 250*time.Millisecond, viaJSON.D.Duration())
	require.NoError(t, json.Unmarshal([]byte(`{"d":""}`), &viaJSON))
	assert.Zero(t, viaJSON.D)

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))

	y, err := Duration(time.Minute).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m0s", y)
}
