// Package chatprovider abstracts the third-party chat service whose status
// and do-not-disturb state the focus state machine mutates on entry/exit.
package chatprovider

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Profile is the subset of chat-provider profile state the state machine
// reads and writes: status text/emoji plus an optional expiration.
type Profile struct {
	StatusText       string
	StatusEmoji      string
	StatusExpiration time.Time // zero value means "no expiration"
}

// Provider is implemented once per chat service. Every call is scoped to a
// single user's token, resolved internally from the token vault — callers
// never pass credentials directly.
type Provider interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error)
	SetProfile(ctx context.Context, userID uuid.UUID, profile Profile) error
	SetDND(ctx context.Context, userID uuid.UUID, duration time.Duration) error
	EndDND(ctx context.Context, userID uuid.UUID) error
}
