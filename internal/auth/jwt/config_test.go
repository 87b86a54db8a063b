package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "static hmac key",
			config: Config{StaticKeys: []StaticKey{{Algorithm: AlgHS256, Key: testSecret}}},
		},
		{
			name:   "jwks only",
			config: Config{JWKSUrl: "https://issuer.test/.well-known/jwks.json"},
		},
		{
			name:    "no key source",
			config:  Config{},
			wantErr: "at least one of staticKeys or jwksUrl",
		},
		{
			name:    "negative skew",
			config:  Config{JWKSUrl: "https://issuer.test/jwks", ClockSkew: -1},
			wantErr: "clockSkew",
		},
		{
			name:    "unsupported algorithm",
			config:  Config{StaticKeys: []StaticKey{{Algorithm: "none", Key: testSecret}}},
			wantErr: "unsupported algorithm",
		},
		{
			name:    "short hmac secret",
			config:  Config{StaticKeys: []StaticKey{{Algorithm: AlgHS256, Key: "short"}}},
			wantErr: "at least 32 bytes",
		},
		{
			name:    "missing key material",
			config:  Config{StaticKeys: []StaticKey{{Algorithm: AlgRS256}}},
			wantErr: "key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExtractBearer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "canonical", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "surrounding space", header: "Bearer   abc  ", want: "abc"},
		{name: "missing", header: "", wantErr: ErrMissingHeader},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantErr: ErrInvalidPrefix},
		{name: "scheme only", header: "Bearer ", wantErr: ErrEmptyToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ExtractBearer(tt.header)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("token expired", ErrTokenExpired)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrTokenMalformed)
	assert.Equal(t, "jwt validation error: token expired: token has expired", err.Error())
}
