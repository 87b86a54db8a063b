package external

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	fga := &OpenFGAConfig{APIURL: "http://openfga:8080", StoreID: testStoreID}
	opa := &OPAConfig{URL: "http://opa:8181", Policy: "avaguard/allow"}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "openfga", cfg: Config{Type: TypeOpenFGA, OpenFGA: fga}},
		{name: "opa", cfg: Config{Type: TypeOPA, OPA: opa}},
		{name: "unknown type", cfg: Config{Type: "zanzibar"}, wantErr: "unsupported type"},
		{name: "missing openfga section", cfg: Config{Type: TypeOpenFGA}, wantErr: "openfga configuration is required"},
		{name: "missing store", cfg: Config{Type: TypeOpenFGA, OpenFGA: &OpenFGAConfig{APIURL: "http://x"}}, wantErr: "storeId"},
		{name: "bad url scheme", cfg: Config{Type: TypeOpenFGA, OpenFGA: &OpenFGAConfig{APIURL: "ftp://x", StoreID: "s"}}, wantErr: "unsupported scheme"},
		{name: "missing policy", cfg: Config{Type: TypeOPA, OPA: &OPAConfig{URL: "http://x"}}, wantErr: "opa.policy"},
		{name: "negative timeout", cfg: Config{Type: TypeOPA, OPA: opa, Timeout: -time.Second}, wantErr: "timeout"},
		{
			name:    "bad breaker ratio",
			cfg:     Config{Type: TypeOPA, OPA: opa, CircuitBreaker: &CircuitBreakerConfig{Enabled: true, Ratio: 2}},
			wantErr: "ratio",
		},
		{
			name:    "bad rate limit",
			cfg:     Config{Type: TypeOPA, OPA: opa, RateLimit: &RateLimitConfig{Enabled: true}},
			wantErr: "rateLimit",
		},
		{
			name: "disabled rate limit is not checked",
			cfg:  Config{Type: TypeOPA, OPA: opa, RateLimit: &RateLimitConfig{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			err := tt.cfg.Validate()

			// Assert
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_EffectiveTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultTimeout, (&Config{}).EffectiveTimeout())
	assert.Equal(t, time.Second, (&Config{Timeout: time.Second}).EffectiveTimeout())
}
