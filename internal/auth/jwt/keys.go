package jwt

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// staticKeySet converts configured keys into a JWK set. Every key carries its
// algorithm so a token cannot select a different one.
func staticKeySet(keys []StaticKey) (jwk.Set, error) {
	set := jwk.NewSet()
	for i, sk := range keys {
		key, err := parseStaticKey(sk)
		if err != nil {
			return nil, fmt.Errorf("staticKeys[%d]: %w", i, err)
		}
		if err := key.Set(jwk.AlgorithmKey, jwa.KeyAlgorithmFrom(sk.Algorithm)); err != nil {
			return nil, fmt.Errorf("staticKeys[%d]: setting algorithm: %w", i, err)
		}
		if sk.KeyID != "" {
			if err := key.Set(jwk.KeyIDKey, sk.KeyID); err != nil {
				return nil, fmt.Errorf("staticKeys[%d]: setting key id: %w", i, err)
			}
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("staticKeys[%d]: %w", i, err)
		}
	}
	return set, nil
}

func parseStaticKey(sk StaticKey) (jwk.Key, error) {
	if isSymmetric(sk.Algorithm) {
		return jwk.FromRaw([]byte(sk.Key))
	}
	key, err := jwk.ParseKey([]byte(sk.Key), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}
	return key, nil
}

// remoteKeySet registers url with a background-refreshing JWKS cache and
// performs the first fetch so misconfiguration surfaces at startup.
func remoteKeySet(ctx context.Context, cfg *Config, client *http.Client) (jwk.Set, error) {
	cache := jwk.NewCache(ctx)

	opts := []jwk.RegisterOption{
		jwk.WithRefreshInterval(cfg.effectiveJWKSRefresh()),
		jwk.WithMinRefreshInterval(defaultJWKSMinInterval),
	}
	if client != nil {
		opts = append(opts, jwk.WithHTTPClient(client))
	}
	if err := cache.Register(cfg.JWKSUrl, opts...); err != nil {
		return nil, fmt.Errorf("registering jwks %s: %w", cfg.JWKSUrl, err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSUrl); err != nil {
		return nil, fmt.Errorf("fetching jwks %s: %w", cfg.JWKSUrl, err)
	}
	return jwk.NewCachedSet(cache, cfg.JWKSUrl), nil
}
