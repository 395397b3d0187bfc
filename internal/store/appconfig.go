package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/pkg/tokenvault"
)

// GetAppConfig implements pkg/tokenvault.AppConfigStore.
func (p *Postgres) GetAppConfig(ctx context.Context, id uuid.UUID) (tokenvault.AppConfig, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, client_id, encrypted_client_secret, encryption_key_id
		FROM app_configs WHERE id = $1`, id)

	var cfg tokenvault.AppConfig
	if err := row.Scan(&cfg.ID, &cfg.ClientID, &cfg.EncryptedClientSecret, &cfg.EncryptionKeyID); err != nil {
		return tokenvault.AppConfig{}, fmt.Errorf("store: loading app config: %w", err)
	}
	return cfg, nil
}
