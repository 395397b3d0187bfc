// Package oauthstate guards OAuth redirects against CSRF with a
// short-lived, one-time Redis state token, promoting the in-process state
// map original_source used to a shared store so it survives process
// restarts and works across API replicas — the same role
// internal/platform/redis.go already plays for this repo's other Redis
// usage.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "focusd:oidc_state:"
	ttl       = 600 * time.Second
)

// ErrInvalidOrExpired is returned when a state token was never issued, has
// already been consumed, or has expired.
var ErrInvalidOrExpired = errors.New("oauthstate: invalid or expired state token")

// Entry is the payload associated with an issued state token.
type Entry struct {
	UserID       uuid.UUID  `json:"user_id"`
	AccountLabel string     `json:"account_label"`
	AppConfigID  *uuid.UUID `json:"app_config_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Store is the Redis-backed CSRF state store.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Issue generates a fresh state token and records entry against it for 600
// seconds, guarded by SET ... NX (collision probability against a 32-byte
// random token is negligible; NX simply protects against reuse of an
// already-live token if one is ever regenerated by mistake).
func (s *Store) Issue(ctx context.Context, entry Entry) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("oauthstate: generating state token: %w", err)
	}
	entry.CreatedAt = time.Now()

	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("oauthstate: marshaling entry: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, keyPrefix+token, payload, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("oauthstate: storing state token: %w", err)
	}
	if !ok {
		return "", errors.New("oauthstate: state token collision, retry")
	}
	return token, nil
}

// Consume atomically reads and deletes the entry for token via GETDEL, so a
// token may be redeemed at most once.
func (s *Store) Consume(ctx context.Context, token string) (Entry, error) {
	payload, err := s.rdb.GetDel(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrInvalidOrExpired
	}
	if err != nil {
		return Entry{}, fmt.Errorf("oauthstate: consuming state token: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return Entry{}, fmt.Errorf("oauthstate: decoding entry: %w", err)
	}
	return entry, nil
}
