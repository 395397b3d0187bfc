package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/focusd/internal/httpserver"
)

// Handler provides the SSE stream and the webhook-subscription management
// API described by the notifier's external interfaces.
type Handler struct {
	registry *Registry
	subs     SubscriptionStore
	logger   *slog.Logger
}

// SubscriptionStore is the CRUD surface webhook-subscription management
// needs, a superset of the read-only WebhookStore the dispatcher uses.
type SubscriptionStore interface {
	WebhookStore
	CreateSubscription(ctx context.Context, sub WebhookSubscription) (WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]WebhookSubscription, error)
	DeleteSubscription(ctx context.Context, userID, id uuid.UUID) error
}

func NewHandler(registry *Registry, subs SubscriptionStore, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, subs: subs, logger: logger}
}

// Routes returns a chi.Router with the SSE stream and webhook subscription
// CRUD routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/events", h.handleStream)
	r.Get("/webhooks", h.handleListSubscriptions)
	r.Post("/webhooks", h.handleCreateSubscription)
	r.Delete("/webhooks/{id}", h.handleDeleteSubscription)
	return r
}

const sseKeepaliveInterval = 30 * time.Second

// handleStream implements the SSE wire format of the notifier's external
// interface: event/data frames for published events, a ": keepalive\n\n"
// comment every 30s of idle, and unregister on client disconnect.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	queue, unregister := h.registry.Register(userID)
	defer unregister()

	ticker := time.NewTicker(sseKeepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			if err := writeEvent(w, ev); err != nil {
				h.logger.Warn("sse write failed, closing stream", "user_id", userID, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("notifier: encoding sse payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}

type createSubscriptionRequest struct {
	URL        string   `json:"url" validate:"required,url"`
	EventTypes []string `json:"event_types"`
}

type subscriptionResponse struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Enabled    bool     `json:"enabled"`
	EventTypes []string `json:"event_types"`
}

func toSubscriptionResponse(s WebhookSubscription) subscriptionResponse {
	return subscriptionResponse{ID: s.ID.String(), URL: s.URL, Enabled: s.Enabled, EventTypes: s.EventTypes}
}

func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	subs, err := h.subs.ListSubscriptions(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing webhook subscriptions", "user_id", userID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list subscriptions")
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubscriptionResponse(s))
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *Handler) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	var req createSubscriptionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sub, err := h.subs.CreateSubscription(r.Context(), WebhookSubscription{
		UserID:     userID,
		URL:        req.URL,
		Enabled:    true,
		EventTypes: req.EventTypes,
	})
	if err != nil {
		h.logger.Error("creating webhook subscription", "user_id", userID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to create subscription")
		return
	}

	httpserver.Respond(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *Handler) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid subscription id")
		return
	}

	if err := h.subs.DeleteSubscription(r.Context(), userID, id); err != nil {
		h.logger.Error("deleting webhook subscription", "user_id", userID, "error", err)
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "subscription not found")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}
