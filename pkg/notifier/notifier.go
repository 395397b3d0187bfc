// Package notifier fans a single event out to a user's SSE subscribers and
// their enabled outbound webhooks, in that order.
package notifier

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const (
	EventFocusStarted         = "focus_started"
	EventFocusEnded           = "focus_ended"
	EventPomodoroWorkStarted  = "pomodoro_work_started"
	EventPomodoroBreakStarted = "pomodoro_break_started"
	EventPomodoroComplete     = "pomodoro_complete"
	EventFocusBypass          = "focus_bypass" // reserved: no producer in this repo
)

// Notifier implements the focus state machine's Notifier collaborator.
type Notifier struct {
	registry *Registry
	webhooks *webhookDispatcher
	logger   *slog.Logger
}

func New(registry *Registry, webhookStore WebhookStore, httpClient *http.Client, logger *slog.Logger) *Notifier {
	return &Notifier{
		registry: registry,
		webhooks: newWebhookDispatcher(webhookStore, httpClient),
		logger:   logger,
	}
}

// Publish delivers to SSE subscribers first, then to webhooks. Webhook
// delivery failures are logged per-target and never returned as an error —
// publish always succeeds from the caller's point of view, matching the
// state machine's "external effects are best-effort" contract.
func (n *Notifier) Publish(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) error {
	n.registry.Broadcast(userID, Event{Type: eventType, Data: payload}, func() {
		n.logger.Warn("sse subscriber queue full, dropping event", "user_id", userID, "event_type", eventType)
	})

	for _, result := range n.webhooks.deliver(ctx, userID, eventType, payload) {
		if !result.Success {
			n.logger.Warn("webhook delivery failed", "user_id", userID, "event_type", eventType, "target", result.Name, "error", result.Error)
		}
	}

	return nil
}

// Registry exposes the underlying SSE registry so the HTTP layer can
// Register/unregister subscribers directly.
func (n *Notifier) Registry() *Registry {
	return n.registry
}
