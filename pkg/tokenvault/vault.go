package tokenvault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/pkg/envelope"
)

const oauthTokensDEKName = "oauth_tokens_dek_v1"

var (
	// ErrNoRefreshToken is returned by RefreshGitHub when the stored record
	// has nothing to refresh with.
	ErrNoRefreshToken = errors.New("tokenvault: token has no refresh token")
	// ErrNotFound is returned when no token record matches the lookup key.
	ErrNotFound = errors.New("tokenvault: no token found")
)

// AppConfig is a per-user GitHub App registration that overrides the
// global OAuth app credentials for that user's tokens.
type AppConfig struct {
	ID                    uuid.UUID
	ClientID              string
	EncryptedClientSecret []byte
	EncryptionKeyID       uuid.UUID
}

// AppConfigStore resolves per-user app credentials.
type AppConfigStore interface {
	GetAppConfig(ctx context.Context, id uuid.UUID) (AppConfig, error)
}

// GitHubRefresher performs the OAuth2 refresh_token grant against GitHub.
// Implemented by pkg/oauthflow; declared here as an interface so the vault
// does not depend on the HTTP client details of the exchange.
type GitHubRefresher interface {
	RefreshGitHub(ctx context.Context, clientID, clientSecret, refreshToken string) (accessToken, newRefreshToken, scope string, expiresAt *time.Time, err error)
}

// GitHubIdentity validates a credential by calling GitHub's authenticated
// user endpoint, used both for PAT validation at insert and to resolve
// ExternalAccountID on OAuth store.
type GitHubIdentity interface {
	WhoAmI(ctx context.Context, accessToken string) (login string, err error)
}

// Revoker performs a provider-side token revocation call. Vault.Revoke
// ignores its errors, so a failure never blocks record deletion.
type Revoker interface {
	Revoke(ctx context.Context, accessToken string) error
}

// Vault wraps envelope.Cipher plus the token/key/app-config repositories to
// implement the spec's token lifecycle: store, decrypt-on-read, refresh,
// revoke, and valid-token-or-none.
type Vault struct {
	cipher     *envelope.Cipher
	tokens     Store
	keys       KeyStore
	appConfigs AppConfigStore
	github     GitHubRefresher
	identity   GitHubIdentity

	globalGitHubClientID     string
	globalGitHubClientSecret string
	kekProvider              string

	revokers map[Provider]Revoker
}

// NewVault builds a Vault. globalGitHubClientID/Secret are the fallback
// GitHub App credentials used when a token has no app_config_id. kekProvider
// is the configured KMS backend name ("local", "gcpkms", "awskms") recorded
// on every encryption_keys row this vault creates.
func NewVault(cipher *envelope.Cipher, tokens Store, keys KeyStore, appConfigs AppConfigStore, github GitHubRefresher, identity GitHubIdentity, globalGitHubClientID, globalGitHubClientSecret, kekProvider string) *Vault {
	return &Vault{
		cipher:                   cipher,
		tokens:                   tokens,
		keys:                     keys,
		appConfigs:               appConfigs,
		github:                   github,
		identity:                 identity,
		globalGitHubClientID:     globalGitHubClientID,
		globalGitHubClientSecret: globalGitHubClientSecret,
		kekProvider:              kekProvider,
		revokers:                 make(map[Provider]Revoker),
	}
}

// RegisterRevoker wires a provider-specific revocation call (e.g. Slack's
// auth.revoke) into Revoke. Providers with no registered Revoker are simply
// deleted without an upstream revoke call.
func (v *Vault) RegisterRevoker(provider Provider, r Revoker) {
	v.revokers[provider] = r
}

// activeKey returns the singleton oauth-tokens DEK's key record, generating
// and persisting one on first use.
func (v *Vault) activeKey(ctx context.Context) (KeyRecord, error) {
	rec, ok, err := v.keys.GetActiveKey(ctx, oauthTokensDEKName)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("tokenvault: loading active key: %w", err)
	}
	if ok {
		return rec, nil
	}

	encryptedDEK, _, err := v.cipher.GenerateDEK(ctx)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("tokenvault: generating DEK: %w", err)
	}

	rec, err = v.keys.CreateKey(ctx, KeyRecord{
		KeyName:      oauthTokensDEKName,
		EncryptedDEK: encryptedDEK,
		KEKProvider:  v.kekProvider,
		IsActive:     true,
	})
	if err != nil {
		return KeyRecord{}, fmt.Errorf("tokenvault: persisting key record: %w", err)
	}

	return rec, nil
}

// keyFor resolves the key record a token (or app config) was encrypted
// under. Rotation leaves older keys inactive but never deletes them, so a
// record's own EncryptionKeyID must be looked up directly rather than
// assumed to be the currently-active key; records that predate this
// linkage fall back to the active key for backward compatibility.
func (v *Vault) keyFor(ctx context.Context, keyID *uuid.UUID) (KeyRecord, error) {
	if keyID == nil {
		return v.activeKey(ctx)
	}
	rec, err := v.keys.GetKey(ctx, *keyID)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("tokenvault: loading encryption key %s: %w", *keyID, err)
	}
	return rec, nil
}

// Store encrypts and upserts a token record by (UserID, Provider, AccountLabel).
func (v *Vault) Store(ctx context.Context, in StoreInput) (Token, error) {
	if in.AccountLabel == "" {
		in.AccountLabel = "default"
	}

	key, err := v.activeKey(ctx)
	if err != nil {
		return Token{}, err
	}

	encryptedAccess, err := v.cipher.Encrypt(ctx, in.AccessToken, key.EncryptedDEK)
	if err != nil {
		return Token{}, fmt.Errorf("tokenvault: encrypting access token: %w", err)
	}

	var encryptedRefresh []byte
	if in.RefreshToken != "" {
		encryptedRefresh, err = v.cipher.Encrypt(ctx, in.RefreshToken, key.EncryptedDEK)
		if err != nil {
			return Token{}, fmt.Errorf("tokenvault: encrypting refresh token: %w", err)
		}
	}

	keyID := key.ID
	t := Token{
		UserID:            in.UserID,
		Provider:          in.Provider,
		AccountLabel:      in.AccountLabel,
		ExternalAccountID: in.ExternalAccountID,
		TokenType:         in.TokenType,
		Scope:             in.Scope,
		ExpiresAt:         in.ExpiresAt,
		EncryptedAccess:   encryptedAccess,
		EncryptedRefresh:  encryptedRefresh,
		EncryptionKeyID:   &keyID,
		AppConfigID:       in.AppConfigID,
	}

	return v.tokens.UpsertToken(ctx, t, legacyPlaintextSentinel)
}

// StorePAT validates pat against GitHub's "who am I" endpoint, resolving
// ExternalAccountID, then stores it as a non-refreshable PAT-type token.
func (v *Vault) StorePAT(ctx context.Context, userID uuid.UUID, pat, label string) (Token, error) {
	login, err := v.identity.WhoAmI(ctx, pat)
	if err != nil {
		return Token{}, fmt.Errorf("tokenvault: validating PAT: %w", err)
	}

	return v.Store(ctx, StoreInput{
		UserID:            userID,
		Provider:          ProviderGitHub,
		AccessToken:       pat,
		Scope:             "pat",
		AccountLabel:      label,
		ExternalAccountID: login,
		TokenType:         TokenTypePAT,
	})
}

// GetPlaintextAccess decrypts and returns the access token for a record.
func (v *Vault) GetPlaintextAccess(ctx context.Context, t Token) (string, error) {
	if len(t.EncryptedAccess) == 0 {
		return "", errors.New("tokenvault: record predates encryption and has no legacy plaintext access token")
	}
	key, err := v.keyFor(ctx, t.EncryptionKeyID)
	if err != nil {
		return "", err
	}
	return v.cipher.Decrypt(ctx, t.EncryptedAccess, key.EncryptedDEK)
}

// GetPlaintextRefresh decrypts and returns the refresh token for a record,
// or "" if the record has none.
func (v *Vault) GetPlaintextRefresh(ctx context.Context, t Token) (string, error) {
	if len(t.EncryptedRefresh) == 0 {
		return "", nil
	}
	key, err := v.keyFor(ctx, t.EncryptionKeyID)
	if err != nil {
		return "", err
	}
	return v.cipher.Decrypt(ctx, t.EncryptedRefresh, key.EncryptedDEK)
}

// credentialsFor resolves the client_id/client_secret pair to use for a
// token's app_config_id, falling back to the global GitHub App.
func (v *Vault) credentialsFor(ctx context.Context, appConfigID *uuid.UUID) (clientID, clientSecret string, err error) {
	if appConfigID == nil {
		if v.globalGitHubClientID == "" {
			return "", "", errors.New("tokenvault: no GitHub App configured (global and per-user credentials both absent)")
		}
		return v.globalGitHubClientID, v.globalGitHubClientSecret, nil
	}

	cfg, err := v.appConfigs.GetAppConfig(ctx, *appConfigID)
	if err != nil {
		return "", "", fmt.Errorf("tokenvault: loading app config: %w", err)
	}

	key, err := v.keyFor(ctx, &cfg.EncryptionKeyID)
	if err != nil {
		return "", "", err
	}
	secret, err := v.cipher.Decrypt(ctx, cfg.EncryptedClientSecret, key.EncryptedDEK)
	if err != nil {
		return "", "", fmt.Errorf("tokenvault: decrypting app config client secret: %w", err)
	}

	return cfg.ClientID, secret, nil
}

// RefreshGitHub performs an OAuth2 refresh_token grant using the per-user
// app credentials if t.AppConfigID is set, else the global credentials, and
// persists the refreshed pair under the same (user, provider, label).
func (v *Vault) RefreshGitHub(ctx context.Context, t Token) (Token, error) {
	refreshToken, err := v.GetPlaintextRefresh(ctx, t)
	if err != nil {
		return Token{}, err
	}
	if refreshToken == "" {
		return Token{}, ErrNoRefreshToken
	}

	clientID, clientSecret, err := v.credentialsFor(ctx, t.AppConfigID)
	if err != nil {
		return Token{}, err
	}

	accessToken, newRefreshToken, scope, expiresAt, err := v.github.RefreshGitHub(ctx, clientID, clientSecret, refreshToken)
	if err != nil {
		return Token{}, fmt.Errorf("tokenvault: github refresh rejected: %w", err)
	}
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}
	if scope == "" {
		scope = t.Scope
	}

	return v.Store(ctx, StoreInput{
		UserID:            t.UserID,
		Provider:          t.Provider,
		AccessToken:       accessToken,
		RefreshToken:      newRefreshToken,
		Scope:             scope,
		ExpiresAt:         expiresAt,
		AccountLabel:      t.AccountLabel,
		ExternalAccountID: t.ExternalAccountID,
		TokenType:         t.TokenType,
		AppConfigID:       t.AppConfigID,
	})
}

// Revoke best-effort revokes the token server-side (ignoring transport
// failures) and deletes the stored record regardless of outcome.
func (v *Vault) Revoke(ctx context.Context, userID uuid.UUID, provider Provider, label string) error {
	t, err := v.tokens.GetToken(ctx, userID, provider, label)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	// Best-effort: a revocation transport failure must not block deletion.
	if r, ok := v.revokers[provider]; ok {
		if access, decErr := v.GetPlaintextAccess(ctx, t); decErr == nil {
			_ = r.Revoke(ctx, access)
		}
	}

	return v.tokens.DeleteToken(ctx, userID, provider, label)
}

// ValidTokenOrNone returns a currently-usable plaintext access token,
// refreshing it first if it is an expired GitHub OAuth token (expired
// tokens of other providers are returned as stored). Returns "" if there
// is no record, or refresh failed.
func (v *Vault) ValidTokenOrNone(ctx context.Context, userID uuid.UUID, provider Provider, label string) string {
	t, err := v.tokens.GetToken(ctx, userID, provider, label)
	if err != nil {
		return ""
	}

	if t.TokenType == TokenTypeOAuth && t.Provider == ProviderGitHub && t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now()) {
		refreshed, err := v.RefreshGitHub(ctx, t)
		if err != nil {
			return ""
		}
		t = refreshed
	}

	access, err := v.GetPlaintextAccess(ctx, t)
	if err != nil {
		return ""
	}
	return access
}
