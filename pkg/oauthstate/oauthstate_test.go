package oauthstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
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

func TestIssueConsumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	userID := uuid.New()

	token, err := s.Issue(ctx, Entry{UserID: userID, AccountLabel: "work"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	entry, err := s.Consume(ctx, token)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if entry.UserID != userID || entry.AccountLabel != "work" {
		t.Errorf("entry = %+v, want UserID=%v AccountLabel=work", entry, userID)
	}
}

func TestConsumeIsOneTimeOnly(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	token, err := s.Issue(ctx, Entry{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Consume(ctx, token); err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if _, err := s.Consume(ctx, token); err != ErrInvalidOrExpired {
		t.Fatalf("second Consume error = %v, want ErrInvalidOrExpired", err)
	}
}

func TestConsumeUnknownTokenFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, err := s.Consume(ctx, "never-issued"); err != ErrInvalidOrExpired {
		t.Fatalf("error = %v, want ErrInvalidOrExpired", err)
	}
}

func TestStateTokenExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	token, err := s.Issue(ctx, Entry{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mr.FastForward(601 * time.Second)

	if _, err := s.Consume(ctx, token); err != ErrInvalidOrExpired {
		t.Fatalf("error = %v, want ErrInvalidOrExpired after TTL elapses", err)
	}
}
