package focus

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/focusd/internal/httpserver"
)

// Handler provides HTTP handlers for the focus state machine's public
// operations.
type Handler struct {
	machine *Machine
	logger  *slog.Logger
}

func NewHandler(machine *Machine, logger *slog.Logger) *Handler {
	return &Handler{machine: machine, logger: logger}
}

// Routes returns a chi.Router with focus routes. Callers mount this under
// an authenticated prefix; RequireUser (internal/httpserver) must already
// have run.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleGetStatus)
	r.Post("/enable", h.handleEnable)
	r.Post("/pomodoro", h.handleStartPomodoro)
	r.Post("/pomodoro/skip", h.handleSkipPhase)
	r.Post("/disable", h.handleDisable)
	return r
}

type enableRequest struct {
	DurationMinutes *int   `json:"duration_minutes" validate:"omitempty,min=1,max=480"`
	CustomMessage   string `json:"custom_message" validate:"max=500"`
}

type startPomodoroRequest struct {
	CustomMessage string `json:"custom_message" validate:"max=500"`
	WorkMinutes   *int   `json:"work_minutes" validate:"omitempty,min=1,max=120"`
	BreakMinutes  *int   `json:"break_minutes" validate:"omitempty,min=1,max=60"`
	TotalSessions *int   `json:"total_sessions" validate:"omitempty,min=1,max=12"`
}

type recordResponse struct {
	UserID        string     `json:"user_id"`
	State         State      `json:"state"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	CustomMessage string     `json:"custom_message,omitempty"`
	SessionCount  int        `json:"session_count,omitempty"`
	TotalSessions *int       `json:"total_sessions,omitempty"`
	WorkMinutes   *int       `json:"work_minutes,omitempty"`
	BreakMinutes  *int       `json:"break_minutes,omitempty"`
}

func toRecordResponse(r Record) recordResponse {
	return recordResponse{
		UserID:        r.UserID.String(),
		State:         r.State,
		StartedAt:     r.StartedAt,
		EndsAt:        r.EndsAt,
		CustomMessage: r.CustomMessage,
		SessionCount:  r.SessionCount,
		TotalSessions: r.TotalSessions,
		WorkMinutes:   r.WorkMinutes,
		BreakMinutes:  r.BreakMinutes,
	}
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	rec, err := h.machine.GetStatus(r.Context(), userID)
	if err != nil {
		h.logger.Error("getting focus status", "user_id", userID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to load focus status")
		return
	}

	httpserver.Respond(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleEnable(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	var req enableRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rec, err := h.machine.Enable(r.Context(), userID, EnableOptions{
		DurationMinutes: req.DurationMinutes,
		CustomMessage:   req.CustomMessage,
	})
	if err != nil {
		h.respondMachineError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleStartPomodoro(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	var req startPomodoroRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rec, err := h.machine.StartPomodoro(r.Context(), userID, StartPomodoroOptions{
		CustomMessage: req.CustomMessage,
		WorkMinutes:   req.WorkMinutes,
		BreakMinutes:  req.BreakMinutes,
		TotalSessions: req.TotalSessions,
	})
	if err != nil {
		h.respondMachineError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleSkipPhase(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	rec, err := h.machine.SkipPhase(r.Context(), userID)
	if err != nil {
		h.respondMachineError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpserver.UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user identity required")
		return
	}

	rec, err := h.machine.Disable(r.Context(), userID)
	if err != nil {
		h.respondMachineError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) respondMachineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidDuration):
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_duration", err.Error())
	case errors.Is(err, ErrAlreadyActive):
		httpserver.RespondError(w, http.StatusConflict, "already_active", "focus session already active")
	default:
		h.logger.Error("focus transition failed", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "focus transition failed")
	}
}
