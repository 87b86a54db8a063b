package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// Prefix marks a configuration value as a Vault reference.
const Prefix = "vault:"

// Reference is a parsed vault:<mount>/<path>#<field> value.
type Reference struct {
	Mount string
	Path  string
	Field string
}

// IsReference reports whether value is a Vault reference.
func IsReference(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// ParseReference parses a vault:<mount>/<path>#<field> value.
func ParseReference(value string) (Reference, error) {
	if !IsReference(value) {
		return Reference{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidReference, Prefix)
	}
	rest := strings.TrimPrefix(value, Prefix)

	location, field, ok := strings.Cut(rest, "#")
	if !ok || field == "" {
		return Reference{}, fmt.Errorf("%w: missing #field", ErrInvalidReference)
	}
	mount, path, ok := strings.Cut(strings.Trim(location, "/"), "/")
	if !ok || mount == "" || path == "" {
		return Reference{}, fmt.Errorf("%w: expected <mount>/<path>", ErrInvalidReference)
	}

	return Reference{Mount: mount, Path: path, Field: field}, nil
}

// Resolver turns configuration values into their effective values.
type Resolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// VaultResolver reads references from Vault KV v2. Values that are not
// references pass through unchanged. Secrets are read once per path.
type VaultResolver struct {
	api    *vaultapi.Client
	logger observability.Logger

	mu    sync.Mutex
	cache map[string]map[string]interface{}
}

// Option configures a VaultResolver.
type Option func(*VaultResolver)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *VaultResolver) {
		r.logger = logger
	}
}

// NewVaultResolver creates a resolver. A nil or disabled cfg yields a resolver
// that passes plain values through and fails on references.
func NewVaultResolver(cfg *Config, opts ...Option) (*VaultResolver, error) {
	r := &VaultResolver{
		logger: observability.NopLogger(),
		cache:  make(map[string]map[string]interface{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if cfg == nil || !cfg.Enabled {
		return r, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	apiConfig.Timeout = defaultTimeout
	if cfg.Timeout > 0 {
		apiConfig.Timeout = cfg.Timeout
	}

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	api.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	r.api = api
	return r, nil
}

// Resolve returns value itself, or the referenced secret field.
func (r *VaultResolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	ref, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	if r.api == nil {
		return "", fmt.Errorf("%w: cannot resolve %s/%s", ErrVaultDisabled, ref.Mount, ref.Path)
	}

	data, err := r.read(ctx, ref.Mount, ref.Path)
	if err != nil {
		return "", err
	}

	raw, ok := data[ref.Field]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s#%s", ErrFieldNotFound, ref.Mount, ref.Path, ref.Field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s#%s is %T", ErrFieldNotFound, ref.Mount, ref.Path, ref.Field, raw)
	}

	r.logger.Debug("secret resolved",
		observability.String("mount", ref.Mount),
		observability.String("path", ref.Path),
		observability.String("field", ref.Field),
	)
	return s, nil
}

func (r *VaultResolver) read(ctx context.Context, mount, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s", mount, path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[fullPath]; ok {
		return data, nil
	}

	secret, err := r.api.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, fullPath)
	}

	// KV v2 wraps the payload in "data"; a soft-deleted secret has data: null.
	dataValue, hasData := secret.Data["data"]
	if hasData && dataValue == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, fullPath)
	}
	data, ok := dataValue.(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	r.cache[fullPath] = data
	return data, nil
}

// ResolveAll resolves each target in place.
func ResolveAll(ctx context.Context, r Resolver, targets ...*string) error {
	for _, target := range targets {
		if target == nil || *target == "" {
			continue
		}
		resolved, err := r.Resolve(ctx, *target)
		if err != nil {
			return err
		}
		*target = resolved
	}
	return nil
}
