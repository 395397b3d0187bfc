// Package tokenvault stores and serves third-party OAuth tokens (and
// GitHub personal access tokens), transparently encrypting them under a
// named singleton DEK managed by pkg/envelope.
package tokenvault

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Provider identifies which third-party service a token belongs to.
type Provider string

const (
	ProviderSlack  Provider = "slack"
	ProviderGitHub Provider = "github"
)

// TokenType distinguishes an OAuth2 access/refresh pair from a long-lived
// personal access token.
type TokenType string

const (
	TokenTypeOAuth TokenType = "oauth"
	TokenTypePAT   TokenType = "pat"
)

// legacyPlaintextSentinel satisfies a historical non-null constraint on the
// plaintext token columns; the encrypted columns are authoritative and
// nothing should ever read this value back as a credential.
const legacyPlaintextSentinel = "encrypted"

// Token is a single stored credential, unique by (UserID, Provider, Label).
type Token struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Provider           Provider
	AccountLabel       string
	ExternalAccountID  string
	TokenType          TokenType
	Scope              string
	ExpiresAt          *time.Time
	EncryptedAccess    []byte
	EncryptedRefresh   []byte
	EncryptionKeyID    *uuid.UUID
	AppConfigID        *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StoreInput carries the plaintext values for Store; both tokens are
// encrypted before persistence and never retained in this struct after the
// call returns.
type StoreInput struct {
	UserID            uuid.UUID
	Provider          Provider
	AccessToken       string
	RefreshToken      string // empty for PATs
	Scope             string
	ExpiresAt         *time.Time
	AccountLabel      string
	ExternalAccountID string
	TokenType         TokenType
	AppConfigID       *uuid.UUID
}

// Store persists, loads and deletes OAuthToken rows. Encryption-key rows
// are handled by KeyStore.
type Store interface {
	UpsertToken(ctx context.Context, t Token, plaintextSentinel string) (Token, error)
	GetToken(ctx context.Context, userID uuid.UUID, provider Provider, label string) (Token, error)
	DeleteToken(ctx context.Context, userID uuid.UUID, provider Provider, label string) error
}

// KeyStore persists EncryptionKey rows — create-only, with rotation adding
// a new row and marking the prior one inactive.
type KeyStore interface {
	GetActiveKey(ctx context.Context, keyName string) (KeyRecord, bool, error)
	CreateKey(ctx context.Context, rec KeyRecord) (KeyRecord, error)
	GetKey(ctx context.Context, id uuid.UUID) (KeyRecord, error)
}

// KeyRecord mirrors the EncryptionKey table.
type KeyRecord struct {
	ID           uuid.UUID
	KeyName      string
	EncryptedDEK []byte
	KEKProvider  string
	IsActive     bool
	CreatedAt    time.Time
}
