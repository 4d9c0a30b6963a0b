package app

import (
	"context"
	"fmt"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/secrets"
	"github.com/curtbushko/zoom-transfer/internal/storage/box"
)

// ResolveSecrets fills empty secrets in cfg from SSM when a prefix is
// configured, then validates cfg. The returned rotation callback persists Box
// refresh tokens to the same store; it is nil without a prefix.
func ResolveSecrets(ctx context.Context, cfg *config.Config, params secrets.ParameterAPI) (box.RotationFunc, error) {
	var rotation box.RotationFunc
	if cfg.Secrets.SSMPrefix != "" {
		store := secrets.NewStore(params, cfg.Secrets.SSMPrefix)
		if err := store.Resolve(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to resolve secrets: %w", err)
		}
		rotation = BoxRotation(store)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return rotation, nil
}

// BoxRotation stores each refresh token Box hands out so the next cold start can use it
func BoxRotation(store *secrets.Store) box.RotationFunc {
	return func(ctx context.Context, refreshToken string) error {
		if err := store.Put(ctx, secrets.BoxRefreshToken, refreshToken); err != nil {
			return err
		}
		logging.Info("Stored rotated Box refresh token at %s", store.Path(secrets.BoxRefreshToken))
		return nil
	}
}
