package main

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avaguard/internal/config"
	"github.com/vyrodovalexey/avaguard/internal/secrets"
)

// resolveSecrets replaces vault: references in cfg. Without a vault section
// any remaining reference fails resolution.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	resolver, err := secrets.NewVaultResolver(cfg.Vault)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	return cfg.ResolveSecrets(ctx, resolver)
}
