// Package secrets resolves credentials from Vault with an environment fallback.
package secrets

import (
	"context"
	"errors"

	"stock-chat/backend/pkg/config"
	"stock-chat/backend/pkg/logger"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Secret keys read at startup
const (
	KeyJWTSecret  = "jwt_secret"
	KeyDBPassword = "db_password"
)

// Resolve overwrites the credentials in cfg with the values known to m.
// Values already in cfg are kept when m has nothing for a key.
func Resolve(ctx context.Context, m Manager, cfg *config.Config, log *logger.Logger) error {
	if m == nil || cfg == nil {
		return nil
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	targets := []struct {
		key string
		dst *string
	}{
		{KeyJWTSecret, &cfg.JWT.Secret},
		{KeyDBPassword, &cfg.Database.Password},
	}
	for _, t := range targets {
		value, err := m.GetSecret(ctx, t.key)
		switch {
		case err == nil:
			*t.dst = value
		case errors.Is(err, ErrSecretNotFound):
			log.Debug("Secret not provided, keeping configured value", "key", t.key)
		default:
			return err
		}
	}
	return nil
}
