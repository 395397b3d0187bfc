package slackevents

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeDedup struct {
	seen map[string]bool
	err  error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]bool)}
}

func (f *fakeDedup) Seen(_ context.Context, eventID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	dup := f.seen[eventID]
	f.seen[eventID] = true
	return dup, nil
}

func newTestHandler(dedup Deduplicator) *Handler {
	return NewHandler(dedup, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleEventsURLVerificationEchoesChallenge(t *testing.T) {
	h := newTestHandler(newFakeDedup())

	body := `{"type":"url_verification","challenge":"abc123"}`
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["challenge"] != "abc123" {
		t.Errorf("challenge = %q, want abc123", resp["challenge"])
	}
}

func TestHandleEventsCallbackChecksDedup(t *testing.T) {
	dedup := newFakeDedup()
	h := newTestHandler(dedup)

	body := `{"type":"event_callback","event_id":"Ev123","event":{"type":"message"}}`

	req1 := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(body))
	rec1 := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d, want 200", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(body))
	rec2 := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("duplicate delivery status = %d, want 200", rec2.Code)
	}

	if !dedup.seen["Ev123"] {
		t.Error("event id was not recorded as seen")
	}
}

func TestHandleEventsInvalidJSONRejected(t *testing.T) {
	h := newTestHandler(newFakeDedup())

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleEventsRejectsBadSignature(t *testing.T) {
	h := NewHandler(newFakeDedup(), "shhh-signing-secret", slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := `{"type":"url_verification","challenge":"abc123"}`
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(body))
	req.Header.Set("X-Slack-Request-Timestamp", "1000000000")
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
