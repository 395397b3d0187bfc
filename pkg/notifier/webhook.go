package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/internal/telemetry"
)

// WebhookSubscription is one user's registered outbound webhook.
type WebhookSubscription struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	URL        string
	Enabled    bool
	EventTypes []string
}

// WebhookStore resolves a user's enabled subscriptions for an event type.
type WebhookStore interface {
	ListEnabledSubscriptions(ctx context.Context, userID uuid.UUID, eventType string) ([]WebhookSubscription, error)
}

// WebhookResult is the per-target outcome of a webhook delivery attempt.
type WebhookResult struct {
	Name    string
	Success bool
	Error   string
}

type webhookBody struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	UserID    uuid.UUID `json:"user_id"`
	Data      any       `json:"data"`
}

const webhookTimeout = 10 * time.Second

type webhookDispatcher struct {
	store      WebhookStore
	httpClient *http.Client
}

func newWebhookDispatcher(store WebhookStore, httpClient *http.Client) *webhookDispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: webhookTimeout}
	}
	return &webhookDispatcher{store: store, httpClient: httpClient}
}

// deliver looks up userID's subscriptions for eventType and POSTs the
// wire-format body to each, isolating failures per target. There are no
// retries: a failed delivery is returned in the result slice and otherwise
// has no further effect.
func (d *webhookDispatcher) deliver(ctx context.Context, userID uuid.UUID, eventType string, payload any) []WebhookResult {
	subs, err := d.store.ListEnabledSubscriptions(ctx, userID, eventType)
	if err != nil || len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(webhookBody{
		Type:      eventType,
		Timestamp: time.Now(),
		UserID:    userID,
		Data:      payload,
	})
	if err != nil {
		return []WebhookResult{{Name: "marshal", Success: false, Error: err.Error()}}
	}

	results := make([]WebhookResult, 0, len(subs))
	for _, sub := range subs {
		results = append(results, d.deliverOne(ctx, sub, body))
	}
	return results
}

func (d *webhookDispatcher) deliverOne(ctx context.Context, sub WebhookSubscription, body []byte) WebhookResult {
	reqCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return WebhookResult{Name: sub.URL, Success: false, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		telemetry.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return WebhookResult{Name: sub.URL, Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		telemetry.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return WebhookResult{Name: sub.URL, Success: false, Error: fmt.Sprintf("webhook target returned status %d", resp.StatusCode)}
	}

	telemetry.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
	return WebhookResult{Name: sub.URL, Success: true}
}
