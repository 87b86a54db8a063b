package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "disabled ignores ttl", mutate: func(c *Config) { c.Enabled = false; c.TTL = 0; c.MaxEntries = 0 }},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, wantErr: "cache.ttl"},
		{name: "zero max entries", mutate: func(c *Config) { c.MaxEntries = 0 }, wantErr: "cache.maxEntries"},
		{name: "negative sweep", mutate: func(c *Config) { c.SweepInterval = -time.Second }, wantErr: "cache.sweepInterval"},
		{name: "negative timeout", mutate: func(c *Config) { c.RequestTimeout = -time.Second }, wantErr: "cache.requestTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			cfg := DefaultConfig()
			tt.mutate(&cfg)

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

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 300*time.Second, cfg.TTL)
	assert.Equal(t, 10000, cfg.MaxEntries)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}
