package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/internal/httpserver"
)

type fakeSubscriptionStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]WebhookSubscription
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: make(map[uuid.UUID]WebhookSubscription)}
}

func (s *fakeSubscriptionStore) ListEnabledSubscriptions(_ context.Context, userID uuid.UUID, eventType string) ([]WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []WebhookSubscription
	for _, sub := range s.subs {
		if sub.UserID != userID || !sub.Enabled {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *fakeSubscriptionStore) CreateSubscription(_ context.Context, sub WebhookSubscription) (WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = uuid.New()
	s.subs[sub.ID] = sub
	return sub, nil
}

func (s *fakeSubscriptionStore) ListSubscriptions(_ context.Context, userID uuid.UUID) ([]WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []WebhookSubscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeSubscriptionStore) DeleteSubscription(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok || sub.UserID != userID {
		return errNotFound
	}
	delete(s.subs, id)
	return nil
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "not found" }

func testHandler() (*Handler, *fakeSubscriptionStore) {
	store := newFakeSubscriptionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(NewRegistry(), store, logger), store
}

func doJSON(t *testing.T, handler http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreateAndListSubscriptions(t *testing.T) {
	h, _ := testHandler()
	handler := httpserver.RequireUser(h.Routes())
	userID := uuid.New().String()

	createRec := doJSON(t, handler, http.MethodPost, "/webhooks", userID, map[string]any{
		"url":         "https://example.com/hook",
		"event_types": []string{"focus_started"},
	})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body=%s", createRec.Code, createRec.Body.String())
	}
	var created subscriptionResponse
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if created.URL != "https://example.com/hook" {
		t.Errorf("url = %q, want https://example.com/hook", created.URL)
	}

	listRec := doJSON(t, handler, http.MethodGet, "/webhooks", userID, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	var subs []subscriptionResponse
	if err := json.NewDecoder(listRec.Body).Decode(&subs); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("subs = %v, want 1", subs)
	}
}

func TestHandleCreateSubscriptionRejectsInvalidURL(t *testing.T) {
	h, _ := testHandler()
	handler := httpserver.RequireUser(h.Routes())
	userID := uuid.New().String()

	rec := doJSON(t, handler, http.MethodPost, "/webhooks", userID, map[string]any{"url": "not-a-url"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleDeleteSubscription(t *testing.T) {
	h, store := testHandler()
	handler := httpserver.RequireUser(h.Routes())
	userID := uuid.New()

	sub, err := store.CreateSubscription(context.Background(), WebhookSubscription{UserID: userID, URL: "https://example.com/a", Enabled: true})
	if err != nil {
		t.Fatalf("seed CreateSubscription: %v", err)
	}

	rec := doJSON(t, handler, http.MethodDelete, "/webhooks/"+sub.ID.String(), userID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body=%s", rec.Code, rec.Body.String())
	}

	again := doJSON(t, handler, http.MethodDelete, "/webhooks/"+sub.ID.String(), userID.String(), nil)
	if again.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", again.Code)
	}
}

func TestHandleDeleteSubscriptionRejectsBadID(t *testing.T) {
	h, _ := testHandler()
	handler := httpserver.RequireUser(h.Routes())
	userID := uuid.New().String()

	rec := doJSON(t, handler, http.MethodDelete, "/webhooks/not-a-uuid", userID, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
