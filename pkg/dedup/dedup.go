// Package dedup guards inbound chat-provider events against duplicate
// delivery. Unlike pkg/alert's Redis-hot-path/DB-fallback deduplicator in
// the teacher, a chat-provider event ID has no durable row to fall back to
// — dedup here is inherently best-effort and Redis-only.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ttl       = 300 * time.Second
	keyPrefix = "focusd:slack:event:"
)

// Checker marks provider event IDs as seen, returning whether a given ID
// has already been processed within the TTL window.
type Checker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Checker {
	return &Checker{rdb: rdb}
}

// Seen atomically marks eventID as processed via SET NX and reports
// whether it was already seen (i.e. this call is itself a duplicate and
// the caller should skip processing and return ok without effect).
func (c *Checker) Seen(ctx context.Context, eventID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, keyPrefix+eventID, "1", ttl).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("dedup: checking event id: %w", err)
	}
	return !ok, nil
}
