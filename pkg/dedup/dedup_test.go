package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestChecker(t *testing.T) (*Checker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestSeenFirstCallIsNotDuplicate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChecker(t)

	dup, err := c.Seen(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if dup {
		t.Error("first call reported as duplicate")
	}
}

func TestSeenSecondCallWithinTTLIsDuplicate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChecker(t)

	if _, err := c.Seen(ctx, "evt-1"); err != nil {
		t.Fatalf("first Seen: %v", err)
	}
	dup, err := c.Seen(ctx, "evt-1")
	if err != nil {
		t.Fatalf("second Seen: %v", err)
	}
	if !dup {
		t.Error("repeat event ID within TTL was not reported as duplicate")
	}
}

func TestSeenAfterTTLIsNotDuplicate(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestChecker(t)

	if _, err := c.Seen(ctx, "evt-1"); err != nil {
		t.Fatalf("first Seen: %v", err)
	}
	mr.FastForward(301 * time.Second)

	dup, err := c.Seen(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Seen after TTL: %v", err)
	}
	if dup {
		t.Error("event ID reported as duplicate after TTL elapsed")
	}
}

func TestSeenDistinctEventsAreIndependent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChecker(t)

	if _, err := c.Seen(ctx, "evt-1"); err != nil {
		t.Fatalf("Seen evt-1: %v", err)
	}
	dup, err := c.Seen(ctx, "evt-2")
	if err != nil {
		t.Fatalf("Seen evt-2: %v", err)
	}
	if dup {
		t.Error("distinct event ID reported as duplicate")
	}
}
