package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeVault serves KV v2 reads for secret/avaguard/*.
func newFakeVault(t *testing.T, reads *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		if reads != nil {
			reads.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/secret/data/avaguard/jwt":
			_, _ = w.Write([]byte(`{"data":{"data":{"hmac":"s3cr3t","rotation":3},"metadata":{"version":1}}}`))
		case "/v1/secret/data/avaguard/deleted":
			_, _ = w.Write([]byte(`{"data":{"data":null,"metadata":{"deletion_time":"2026-01-01T00:00:00Z"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    Reference
		wantErr bool
	}{
		{name: "simple", value: "vault:secret/avaguard/jwt#hmac", want: Reference{Mount: "secret", Path: "avaguard/jwt", Field: "hmac"}},
		{name: "leading slash", value: "vault:/kv/app#token", want: Reference{Mount: "kv", Path: "app", Field: "token"}},
		{name: "no prefix", value: "secret/app#token", wantErr: true},
		{name: "no field", value: "vault:secret/app", wantErr: true},
		{name: "empty field", value: "vault:secret/app#", wantErr: true},
		{name: "no path", value: "vault:secret#token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			got, err := ParseReference(tt.value)

			// Assert
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidReference)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVaultResolver_Resolve(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t, nil)

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr error
	}{
		{name: "plain value passes through", value: "literal", want: "literal"},
		{name: "string field", value: "vault:secret/avaguard/jwt#hmac", want: "s3cr3t"},
		{name: "missing field", value: "vault:secret/avaguard/jwt#nope", wantErr: ErrFieldNotFound},
		{name: "non-string field", value: "vault:secret/avaguard/jwt#rotation", wantErr: ErrFieldNotFound},
		{name: "missing path", value: "vault:secret/avaguard/missing#x", wantErr: ErrSecretNotFound},
		{name: "soft-deleted path", value: "vault:secret/avaguard/deleted#x", wantErr: ErrSecretNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			r, err := NewVaultResolver(&Config{Enabled: true, Address: srv.URL, Token: "root"})
			require.NoError(t, err)

			// Act
			got, err := r.Resolve(context.Background(), tt.value)

			// Assert
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVaultResolver_ReadsEachPathOnce(t *testing.T) {
	t.Parallel()

	// Arrange
	var reads atomic.Int32
	srv := newFakeVault(t, &reads)
	r, err := NewVaultResolver(&Config{Enabled: true, Address: srv.URL, Token: "root"})
	require.NoError(t, err)
	a := "vault:secret/avaguard/jwt#hmac"
	b := "vault:secret/avaguard/jwt#hmac"
	plain := "unchanged"

	// Act
	err = ResolveAll(context.Background(), r, &a, &b, &plain, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", a)
	assert.Equal(t, "s3cr3t", b)
	assert.Equal(t, "unchanged", plain)
	assert.Equal(t, int32(1), reads.Load())
}

func TestVaultResolver_Disabled(t *testing.T) {
	t.Parallel()

	// Arrange
	r, err := NewVaultResolver(nil)
	require.NoError(t, err)

	// Act
	plain, plainErr := r.Resolve(context.Background(), "literal")
	_, refErr := r.Resolve(context.Background(), "vault:secret/app#token")

	// Assert
	require.NoError(t, plainErr)
	assert.Equal(t, "literal", plain)
	assert.ErrorIs(t, refErr, ErrVaultDisabled)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (*Config)(nil).Validate())
	assert.NoError(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Enabled: true, Token: "t"}).Validate())
	assert.Error(t, (&Config{Enabled: true, Address: "http://vault:8200"}).Validate())
	assert.NoError(t, (&Config{Enabled: true, Address: "http://vault:8200", Token: "t"}).Validate())
}
