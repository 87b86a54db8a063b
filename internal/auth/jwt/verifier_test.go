package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "https://issuer.avaguard.test"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestVerifier(t *testing.T, opts ...Option) *Verifier {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Issuer = testIssuer
	cfg.StaticKeys = []StaticKey{{Algorithm: AlgHS256, Key: testSecret}}

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	v, err := NewVerifier(context.Background(), cfg, opts...)
	require.NoError(t, err)
	return v
}

func signHS(t *testing.T, alg jwa.SignatureAlgorithm, secret string, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()

	tok, err := build(jwt.NewBuilder()).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func validClaims(b *jwt.Builder) *jwt.Builder {
	return b.Subject("user-42").
		Issuer(testIssuer).
		IssuedAt(testNow.Add(-time.Minute)).
		Expiration(testNow.Add(time.Hour))
}

func TestVerifier_Verify_Valid(t *testing.T) {
	t.Parallel()

	// Arrange
	v := newTestVerifier(t)
	token := signHS(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return validClaims(b).
			Claim("email", "ada@example.com").
			Claim("username", "ada").
			Claim("roles", []string{"admin", "member"})
	})

	// Act
	identity, err := v.Verify(context.Background(), token)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "user-42", identity.Subject)
	assert.Equal(t, testIssuer, identity.Issuer)
	assert.True(t, identity.ExpiresAt.Equal(testNow.Add(time.Hour)))
	assert.True(t, identity.IssuedAt.Equal(testNow.Add(-time.Minute)))
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.Equal(t, "ada", identity.Username)
	assert.Equal(t, []string{"admin", "member"}, identity.Roles)
}

func TestVerifier_Verify_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "empty token",
			token:   func(*testing.T) string { return "" },
			wantErr: ErrEmptyToken,
		},
		{
			name:    "not a jwt",
			token:   func(*testing.T) string { return "definitely-not-a-token" },
			wantErr: ErrTokenMalformed,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				return signHS(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
					return validClaims(b).IssuedAt(testNow.Add(-2 * time.Hour)).Expiration(testNow.Add(-time.Hour))
				})
			},
			wantErr: ErrTokenExpired,
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return signHS(t, jwa.HS256, "ffffffffffffffffffffffffffffffff", validClaims)
			},
			wantErr: ErrTokenInvalidSignature,
		},
		{
			name: "algorithm does not match key",
			token: func(t *testing.T) string {
				return signHS(t, jwa.HS384, testSecret, validClaims)
			},
			wantErr: ErrTokenInvalidSignature,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				return signHS(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
					return validClaims(b).Issuer("https://elsewhere.test")
				})
			},
			wantErr: ErrTokenInvalidIssuer,
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return signHS(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
					return b.Issuer(testIssuer).Expiration(testNow.Add(time.Hour))
				})
			},
			wantErr: ErrTokenMissingClaim,
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				return signHS(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
					return b.Subject("user-42").Issuer(testIssuer)
				})
			},
			wantErr: ErrTokenMissingClaim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := newTestVerifier(t)

			identity, err := v.Verify(context.Background(), tt.token(t))

			require.Error(t, err)
			assert.Nil(t, identity)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

// TestVerifier_Verify_DefaultConfigRejectsExpired tests that the default
// configuration allows no grace period after exp.
func TestVerifier_Verify_DefaultConfigRejectsExpired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		skew      time.Duration
		expiresAt time.Time
		wantErr   bool
	}{
		{name: "expired seconds ago", expiresAt: testNow.Add(-5 * time.Second), wantErr: true},
		{name: "expires exactly now", expiresAt: testNow, wantErr: true},
		{name: "expires in a second", expiresAt: testNow.Add(time.Second)},
		{name: "opt-in skew covers recent expiry", skew: 10 * time.Second, expiresAt: testNow.Add(-5 * time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			cfg := DefaultConfig()
			cfg.ClockSkew = tt.skew
			cfg.StaticKeys = []StaticKey{{Algorithm: AlgHS256, Key: testSecret}}
			v, err := NewVerifier(context.Background(), cfg, WithClock(func() time.Time { return testNow }))
			require.NoError(t, err)
			token := signHS(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
				return b.Subject("user-42").IssuedAt(testNow.Add(-time.Minute)).Expiration(tt.expiresAt)
			})

			// Act
			identity, err := v.Verify(context.Background(), token)

			// Assert
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTokenExpired)
				assert.Nil(t, identity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-42", identity.Subject)
		})
	}
}

func TestDefaultConfig_NoClockSkew(t *testing.T) {
	t.Parallel()

	assert.Zero(t, DefaultConfig().ClockSkew)
}

// TestVerifier_Verify_InjectedClock tests that expiry is judged by the injected clock.
func TestVerifier_Verify_InjectedClock(t *testing.T) {
	t.Parallel()

	// Arrange
	now := testNow
	v := newTestVerifier(t, WithClock(func() time.Time { return now }))
	token := signHS(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return validClaims(b).Expiration(testNow.Add(10 * time.Minute))
	})

	// Act
	_, errBefore := v.Verify(context.Background(), token)
	now = testNow.Add(time.Hour)
	_, errAfter := v.Verify(context.Background(), token)

	// Assert
	assert.NoError(t, errBefore)
	assert.True(t, IsExpiredError(errAfter))
}

func TestVerifier_Verify_RecordsMetrics(t *testing.T) {
	t.Parallel()

	// Arrange
	metrics := NewMetricsWithRegisterer("test", prometheus.NewRegistry())
	v := newTestVerifier(t, WithMetrics(metrics))
	token := signHS(t, jwa.HS256, testSecret, validClaims)

	// Act
	_, _ = v.Verify(context.Background(), token)
	_, _ = v.Verify(context.Background(), "garbage")

	// Assert
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.verificationTotal.WithLabelValues("verified", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.verificationTotal.WithLabelValues("rejected", "malformed")))
}

func TestVerifier_Verify_JWKS(t *testing.T) {
	t.Parallel()

	// Arrange
	rawKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privateKey, err := jwk.FromRaw(rawKey)
	require.NoError(t, err)
	require.NoError(t, privateKey.Set(jwk.KeyIDKey, "key-1"))
	require.NoError(t, privateKey.Set(jwk.AlgorithmKey, jwa.RS256))
	publicKey, err := privateKey.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(publicKey))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := DefaultConfig()
	cfg.JWKSUrl = server.URL
	v, err := NewVerifier(ctx, cfg, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	tok, err := jwt.NewBuilder().Subject("svc-7").Expiration(time.Now().Add(time.Hour)).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, privateKey))
	require.NoError(t, err)

	// Act
	identity, err := v.Verify(context.Background(), string(signed))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "svc-7", identity.Subject)
}

func TestNewVerifier_JWKSUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.JWKSUrl = server.URL

	v, err := NewVerifier(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, v)
}
