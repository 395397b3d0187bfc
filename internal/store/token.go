package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/focusd/pkg/tokenvault"
)

// UpsertToken implements pkg/tokenvault.Store. plaintextSentinel fills the
// legacy non-null plaintext columns this table still carries; nothing ever
// reads them back as credentials.
func (p *Postgres) UpsertToken(ctx context.Context, t tokenvault.Token, plaintextSentinel string) (tokenvault.Token, error) {
	row := p.db.QueryRow(ctx, `
		INSERT INTO oauth_tokens
			(user_id, provider, account_label, external_account_id, token_type,
			 scope, expires_at, access_token, refresh_token,
			 encrypted_access, encrypted_refresh, encryption_key_id, app_config_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $10, $11, $12, now())
		ON CONFLICT (user_id, provider, account_label) DO UPDATE SET
			external_account_id = EXCLUDED.external_account_id,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			encrypted_access = EXCLUDED.encrypted_access,
			encrypted_refresh = EXCLUDED.encrypted_refresh,
			encryption_key_id = EXCLUDED.encryption_key_id,
			app_config_id = EXCLUDED.app_config_id,
			updated_at = now()
		RETURNING id, user_id, provider, account_label, external_account_id, token_type,
		          scope, expires_at, encrypted_access, encrypted_refresh, encryption_key_id, app_config_id,
		          created_at, updated_at`,
		t.UserID, t.Provider, t.AccountLabel, t.ExternalAccountID, t.TokenType,
		t.Scope, t.ExpiresAt, plaintextSentinel,
		t.EncryptedAccess, t.EncryptedRefresh, t.EncryptionKeyID, t.AppConfigID,
	)

	var out tokenvault.Token
	err := row.Scan(&out.ID, &out.UserID, &out.Provider, &out.AccountLabel, &out.ExternalAccountID, &out.TokenType,
		&out.Scope, &out.ExpiresAt, &out.EncryptedAccess, &out.EncryptedRefresh, &out.EncryptionKeyID, &out.AppConfigID,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return tokenvault.Token{}, fmt.Errorf("store: upserting oauth token: %w", err)
	}
	return out, nil
}

// GetToken implements pkg/tokenvault.Store.
func (p *Postgres) GetToken(ctx context.Context, userID uuid.UUID, provider tokenvault.Provider, label string) (tokenvault.Token, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, user_id, provider, account_label, external_account_id, token_type,
		       scope, expires_at, encrypted_access, encrypted_refresh, encryption_key_id, app_config_id,
		       created_at, updated_at
		FROM oauth_tokens
		WHERE user_id = $1 AND provider = $2 AND account_label = $3`,
		userID, provider, label,
	)

	var out tokenvault.Token
	err := row.Scan(&out.ID, &out.UserID, &out.Provider, &out.AccountLabel, &out.ExternalAccountID, &out.TokenType,
		&out.Scope, &out.ExpiresAt, &out.EncryptedAccess, &out.EncryptedRefresh, &out.EncryptionKeyID, &out.AppConfigID,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return tokenvault.Token{}, tokenvault.ErrNotFound
	}
	if err != nil {
		return tokenvault.Token{}, fmt.Errorf("store: loading oauth token: %w", err)
	}
	return out, nil
}

// DeleteToken implements pkg/tokenvault.Store.
func (p *Postgres) DeleteToken(ctx context.Context, userID uuid.UUID, provider tokenvault.Provider, label string) error {
	_, err := p.db.Exec(ctx, `
		DELETE FROM oauth_tokens WHERE user_id = $1 AND provider = $2 AND account_label = $3`,
		userID, provider, label,
	)
	if err != nil {
		return fmt.Errorf("store: deleting oauth token: %w", err)
	}
	return nil
}

// GetActiveKey implements pkg/tokenvault.KeyStore.
func (p *Postgres) GetActiveKey(ctx context.Context, keyName string) (tokenvault.KeyRecord, bool, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, key_name, encrypted_dek, kek_provider, is_active, created_at
		FROM encryption_keys
		WHERE key_name = $1 AND is_active = true
		ORDER BY created_at DESC
		LIMIT 1`, keyName)

	var rec tokenvault.KeyRecord
	err := row.Scan(&rec.ID, &rec.KeyName, &rec.EncryptedDEK, &rec.KEKProvider, &rec.IsActive, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tokenvault.KeyRecord{}, false, nil
	}
	if err != nil {
		return tokenvault.KeyRecord{}, false, fmt.Errorf("store: loading active encryption key: %w", err)
	}
	return rec, true, nil
}

// GetKey implements pkg/tokenvault.KeyStore, looking a key up by its row ID
// regardless of whether rotation has since deactivated it.
func (p *Postgres) GetKey(ctx context.Context, id uuid.UUID) (tokenvault.KeyRecord, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, key_name, encrypted_dek, kek_provider, is_active, created_at
		FROM encryption_keys
		WHERE id = $1`, id)

	var rec tokenvault.KeyRecord
	err := row.Scan(&rec.ID, &rec.KeyName, &rec.EncryptedDEK, &rec.KEKProvider, &rec.IsActive, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tokenvault.KeyRecord{}, fmt.Errorf("store: encryption key %s: %w", id, tokenvault.ErrNotFound)
	}
	if err != nil {
		return tokenvault.KeyRecord{}, fmt.Errorf("store: loading encryption key %s: %w", id, err)
	}
	return rec, nil
}

// CreateKey implements pkg/tokenvault.KeyStore. Rotation is create-only: a
// new row is inserted active and any prior active row for the same name is
// marked inactive in the same transaction.
func (p *Postgres) CreateKey(ctx context.Context, rec tokenvault.KeyRecord) (tokenvault.KeyRecord, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return tokenvault.KeyRecord{}, fmt.Errorf("store: beginning key rotation: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE encryption_keys SET is_active = false
		WHERE key_name = $1 AND is_active = true`, rec.KeyName); err != nil {
		return tokenvault.KeyRecord{}, fmt.Errorf("store: deactivating prior encryption key: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO encryption_keys (key_name, encrypted_dek, kek_provider, is_active)
		VALUES ($1, $2, $3, true)
		RETURNING id, key_name, encrypted_dek, kek_provider, is_active, created_at`,
		rec.KeyName, rec.EncryptedDEK, rec.KEKProvider,
	)

	var out tokenvault.KeyRecord
	if err := row.Scan(&out.ID, &out.KeyName, &out.EncryptedDEK, &out.KEKProvider, &out.IsActive, &out.CreatedAt); err != nil {
		return tokenvault.KeyRecord{}, fmt.Errorf("store: inserting encryption key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return tokenvault.KeyRecord{}, fmt.Errorf("store: committing key rotation: %w", err)
	}
	return out, nil
}
