package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type fakeWebhookStore struct {
	subs []WebhookSubscription
}

func (s *fakeWebhookStore) ListEnabledSubscriptions(_ context.Context, _ uuid.UUID, _ string) ([]WebhookSubscription, error) {
	return s.subs, nil
}

func TestWebhookDeliverPostsWireFormat(t *testing.T) {
	var received webhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	userID := uuid.New()
	store := &fakeWebhookStore{subs: []WebhookSubscription{{URL: srv.URL, Enabled: true, EventTypes: []string{"focus_started"}}}}
	d := newWebhookDispatcher(store, srv.Client())

	results := d.deliver(context.Background(), userID, "focus_started", map[string]any{"reason": ""})
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %+v, want one successful delivery", results)
	}
	if received.Type != "focus_started" {
		t.Errorf("delivered type = %q, want focus_started", received.Type)
	}
	if received.UserID != userID {
		t.Errorf("delivered user_id = %v, want %v", received.UserID, userID)
	}
}

func TestWebhookDeliverIsolatesPerTargetFailure(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	store := &fakeWebhookStore{subs: []WebhookSubscription{
		{URL: okSrv.URL, Enabled: true, EventTypes: []string{"focus_ended"}},
		{URL: badSrv.URL, Enabled: true, EventTypes: []string{"focus_ended"}},
	}}
	d := newWebhookDispatcher(store, okSrv.Client())

	results := d.deliver(context.Background(), uuid.New(), "focus_ended", nil)
	if len(results) != 2 {
		t.Fatalf("results = %+v, want 2 entries", results)
	}

	var sawSuccess, sawFailure bool
	for _, r := range results {
		if r.Success {
			sawSuccess = true
		} else {
			sawFailure = true
		}
	}
	if !sawSuccess || !sawFailure {
		t.Errorf("results = %+v, want one success and one failure", results)
	}
}

func TestWebhookDeliverNoSubscriptionsIsNoop(t *testing.T) {
	store := &fakeWebhookStore{}
	d := newWebhookDispatcher(store, nil)

	results := d.deliver(context.Background(), uuid.New(), "focus_started", nil)
	if results != nil {
		t.Errorf("results = %+v, want nil", results)
	}
}
