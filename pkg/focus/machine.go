package focus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/pkg/chatprovider"
)

var (
	ErrInvalidDuration = errors.New("focus: duration out of range")
	ErrAlreadyActive   = errors.New("focus: session already active")
)

// Machine is the focus state machine. It owns no state itself — every
// operation reads the current Record, computes the next Record and its
// side effects in memory, commits the Record, then best-effort-applies the
// side effects in the mandated order.
type Machine struct {
	store     Store
	settings  SettingsStore
	scheduler Scheduler
	notifier  Notifier
	chat      chatprovider.Provider
	logger    *slog.Logger
}

func NewMachine(store Store, settings SettingsStore, scheduler Scheduler, notifier Notifier, chat chatprovider.Provider, logger *slog.Logger) *Machine {
	return &Machine{store: store, settings: settings, scheduler: scheduler, notifier: notifier, chat: chat, logger: logger}
}

// EnableOptions carries the parameters of a simple-focus enable request.
type EnableOptions struct {
	DurationMinutes *int // nil means no auto-expiration
	CustomMessage   string
}

// StartPomodoroOptions carries the parameters of a pomodoro start request.
type StartPomodoroOptions struct {
	CustomMessage string
	WorkMinutes   *int // nil uses the user's settings default
	BreakMinutes  *int
	TotalSessions *int // nil means unbounded
}

func validateDuration(minutes *int, lo, hi int) error {
	if minutes == nil {
		return nil
	}
	if *minutes < lo || *minutes > hi {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidDuration, *minutes, lo, hi)
	}
	return nil
}

// Enable transitions OFF -> SIMPLE. No-op error if a session is already
// active (callers wanting "extend" semantics should call Disable first).
func (m *Machine) Enable(ctx context.Context, userID uuid.UUID, opts EnableOptions) (Record, error) {
	if err := validateDuration(opts.DurationMinutes, 1, 480); err != nil {
		return Record{}, err
	}

	rec, _, err := m.store.GetRecord(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading record: %w", err)
	}
	if rec.IsActive() {
		return Record{}, ErrAlreadyActive
	}

	settings, err := m.settings.GetSettings(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading settings: %w", err)
	}

	saved := m.snapshotChatStatus(ctx, userID)

	now := time.Now()
	rec = Record{
		UserID:          userID,
		State:           StateSimple,
		StartedAt:       &now,
		CustomMessage:   opts.CustomMessage,
		SavedChatStatus: saved,
	}
	if opts.DurationMinutes != nil {
		ends := now.Add(time.Duration(*opts.DurationMinutes) * time.Minute)
		rec.EndsAt = &ends
	}

	if err := m.store.UpsertRecord(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("focus: committing enable: %w", err)
	}

	m.applyChatStatus(ctx, userID, settings.SimpleStatus)
	dndMinutes := 480
	if opts.DurationMinutes != nil {
		dndMinutes = *opts.DurationMinutes
	}
	m.setDND(ctx, userID, time.Duration(dndMinutes)*time.Minute)
	m.publish(ctx, userID, EventFocusStarted, map[string]any{"reason": ""})

	if rec.EndsAt != nil {
		if err := m.scheduler.ScheduleFocusExpire(ctx, userID, *rec.EndsAt); err != nil {
			m.logger.Error("scheduling focus expire", "user_id", userID, "error", err)
		}
	}

	return rec, nil
}

// StartPomodoro transitions OFF -> POMO_WORK.
func (m *Machine) StartPomodoro(ctx context.Context, userID uuid.UUID, opts StartPomodoroOptions) (Record, error) {
	if err := validateDuration(opts.WorkMinutes, 1, 120); err != nil {
		return Record{}, err
	}
	if err := validateDuration(opts.BreakMinutes, 1, 60); err != nil {
		return Record{}, err
	}
	if err := validateDuration(opts.TotalSessions, 1, 12); err != nil {
		return Record{}, err
	}

	rec, _, err := m.store.GetRecord(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading record: %w", err)
	}
	if rec.IsActive() {
		return Record{}, ErrAlreadyActive
	}

	settings, err := m.settings.GetSettings(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading settings: %w", err)
	}

	workMinutes := settings.WorkMinutes
	if opts.WorkMinutes != nil {
		workMinutes = *opts.WorkMinutes
	}
	breakMinutes := settings.BreakMinutes
	if opts.BreakMinutes != nil {
		breakMinutes = *opts.BreakMinutes
	}

	saved := m.snapshotChatStatus(ctx, userID)

	now := time.Now()
	ends := now.Add(time.Duration(workMinutes) * time.Minute)
	rec = Record{
		UserID:          userID,
		State:           StatePomoWork,
		StartedAt:       &now,
		EndsAt:          &ends,
		CustomMessage:   opts.CustomMessage,
		SavedChatStatus: saved,
		SessionCount:    1,
		TotalSessions:   opts.TotalSessions,
		WorkMinutes:     &workMinutes,
		BreakMinutes:    &breakMinutes,
	}

	if err := m.store.UpsertRecord(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("focus: committing pomodoro start: %w", err)
	}

	m.applyChatStatus(ctx, userID, settings.WorkStatus)
	m.setDND(ctx, userID, time.Duration(workMinutes)*time.Minute)
	m.publish(ctx, userID, EventPomodoroWorkStarted, map[string]any{"session_count": rec.SessionCount})

	if err := m.scheduler.SchedulePomodoroTransition(ctx, userID, ends); err != nil {
		m.logger.Error("scheduling pomodoro transition", "user_id", userID, "error", err)
	}

	return rec, nil
}

// SkipPhase advances a pomodoro session early: POMO_WORK->POMO_BREAK or
// POMO_BREAK->POMO_WORK, subject to the same session-cap rule as the
// scheduled transition.
func (m *Machine) SkipPhase(ctx context.Context, userID uuid.UUID) (Record, error) {
	return m.advancePhase(ctx, userID, false)
}

// OnTransition is the scheduler's entry point for a fired
// pomodoro_transition job. It performs the same advance as SkipPhase; the
// two differ only in who invoked them.
func (m *Machine) OnTransition(ctx context.Context, userID uuid.UUID) (Record, error) {
	return m.advancePhase(ctx, userID, true)
}

func (m *Machine) advancePhase(ctx context.Context, userID uuid.UUID, fromJob bool) (Record, error) {
	rec, ok, err := m.store.GetRecord(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading record: %w", err)
	}
	if !ok || (rec.State != StatePomoWork && rec.State != StatePomoBreak) {
		// Idempotent no-op: a job firing late or a double-skip lands here.
		return rec, nil
	}

	settings, err := m.settings.GetSettings(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading settings: %w", err)
	}

	atCap := rec.TotalSessions != nil && rec.SessionCount >= *rec.TotalSessions
	if rec.State == StatePomoWork && atCap {
		return m.disableInternal(ctx, userID, rec, reasonPomodoroComplete)
	}

	if _, err := m.scheduler.CancelPomodoroTransition(ctx, userID); err != nil {
		m.logger.Error("cancelling pending pomodoro transition", "user_id", userID, "error", err)
	}

	now := time.Now()
	var status ChatStatus
	var event string
	var dndMinutes int

	if rec.State == StatePomoWork {
		breakMinutes := 5
		if rec.BreakMinutes != nil {
			breakMinutes = *rec.BreakMinutes
		}
		rec.State = StatePomoBreak
		ends := now.Add(time.Duration(breakMinutes) * time.Minute)
		rec.EndsAt = &ends
		status = settings.BreakStatus
		event = EventPomodoroBreakStarted
		dndMinutes = breakMinutes
	} else {
		workMinutes := 25
		if rec.WorkMinutes != nil {
			workMinutes = *rec.WorkMinutes
		}
		rec.SessionCount++
		rec.State = StatePomoWork
		ends := now.Add(time.Duration(workMinutes) * time.Minute)
		rec.EndsAt = &ends
		status = settings.WorkStatus
		event = EventPomodoroWorkStarted
		dndMinutes = workMinutes
	}

	if err := m.store.UpsertRecord(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("focus: committing phase transition: %w", err)
	}

	m.applyChatStatus(ctx, userID, status)
	m.setDND(ctx, userID, time.Duration(dndMinutes)*time.Minute)
	m.publish(ctx, userID, event, map[string]any{"session_count": rec.SessionCount})

	if err := m.scheduler.SchedulePomodoroTransition(ctx, userID, *rec.EndsAt); err != nil {
		m.logger.Error("scheduling pomodoro transition", "user_id", userID, "error", err)
	}

	return rec, nil
}

type disableReason string

const (
	reasonManual           disableReason = ""
	reasonExpired          disableReason = "expired"
	reasonPomodoroComplete disableReason = "pomodoro_complete"
)

// Disable transitions any active state to OFF.
func (m *Machine) Disable(ctx context.Context, userID uuid.UUID) (Record, error) {
	rec, ok, err := m.store.GetRecord(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading record: %w", err)
	}
	if !ok || !rec.IsActive() {
		// Idempotent: disabling an already-OFF session is a no-op.
		return rec, nil
	}
	return m.disableInternal(ctx, userID, rec, reasonManual)
}

// OnExpire is the scheduler's entry point for a fired focus_expire job. It
// self-cancels: if the record is no longer active, or its phase has not
// actually ended yet, it does nothing.
func (m *Machine) OnExpire(ctx context.Context, userID uuid.UUID) (Record, error) {
	rec, ok, err := m.store.GetRecord(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading record: %w", err)
	}
	if !ok || rec.State != StateSimple {
		return rec, nil
	}
	if rec.EndsAt == nil || rec.EndsAt.After(time.Now()) {
		return rec, nil
	}
	return m.disableInternal(ctx, userID, rec, reasonExpired)
}

func (m *Machine) disableInternal(ctx context.Context, userID uuid.UUID, rec Record, reason disableReason) (Record, error) {
	if _, err := m.scheduler.CancelPomodoroTransition(ctx, userID); err != nil {
		m.logger.Error("cancelling pending pomodoro transition", "user_id", userID, "error", err)
	}

	saved := rec.SavedChatStatus

	rec.State = StateOff
	rec.StartedAt = nil
	rec.EndsAt = nil
	rec.SavedChatStatus = nil
	rec.SessionCount = 0
	rec.TotalSessions = nil
	rec.WorkMinutes = nil
	rec.BreakMinutes = nil

	if err := m.store.UpsertRecord(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("focus: committing disable: %w", err)
	}

	if saved != nil {
		m.applyChatStatus(ctx, userID, *saved)
	} else {
		m.applyChatStatus(ctx, userID, ChatStatus{})
	}
	m.endDND(ctx, userID)

	event := EventFocusEnded
	if reason == reasonPomodoroComplete {
		event = EventPomodoroComplete
	}
	m.publish(ctx, userID, event, map[string]any{"reason": string(reason)})

	return rec, nil
}

// GetStatus returns the current record, first performing lazy OFF
// expiration for SIMPLE sessions whose ends_at has already passed.
// Pomodoro phase ends are advisory until the scheduler or SkipPhase acts.
func (m *Machine) GetStatus(ctx context.Context, userID uuid.UUID) (Record, error) {
	rec, ok, err := m.store.GetRecord(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("focus: loading record: %w", err)
	}
	if !ok {
		return Record{UserID: userID, State: StateOff}, nil
	}
	if rec.State == StateSimple && rec.EndsAt != nil && !rec.EndsAt.After(time.Now()) {
		return m.disableInternal(ctx, userID, rec, reasonExpired)
	}
	return rec, nil
}

func (m *Machine) snapshotChatStatus(ctx context.Context, userID uuid.UUID) *ChatStatus {
	profile, err := m.chat.GetProfile(ctx, userID)
	if err != nil {
		m.logger.Warn("chat-provider get_profile failed, entering session with no saved status", "user_id", userID, "error", err)
		return nil
	}
	return &ChatStatus{Text: profile.StatusText, Emoji: profile.StatusEmoji}
}

func (m *Machine) applyChatStatus(ctx context.Context, userID uuid.UUID, status ChatStatus) {
	if err := m.chat.SetProfile(ctx, userID, chatprovider.Profile{StatusText: status.Text, StatusEmoji: status.Emoji}); err != nil {
		m.logger.Warn("chat-provider set_profile failed", "user_id", userID, "error", err)
	}
}

func (m *Machine) setDND(ctx context.Context, userID uuid.UUID, d time.Duration) {
	if err := m.chat.SetDND(ctx, userID, d); err != nil {
		m.logger.Warn("chat-provider set_dnd failed", "user_id", userID, "error", err)
	}
}

func (m *Machine) endDND(ctx context.Context, userID uuid.UUID) {
	if err := m.chat.EndDND(ctx, userID); err != nil {
		m.logger.Warn("chat-provider end_dnd failed", "user_id", userID, "error", err)
	}
}

func (m *Machine) publish(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) {
	if err := m.notifier.Publish(ctx, userID, eventType, payload); err != nil {
		m.logger.Warn("notifier publish failed", "user_id", userID, "event_type", eventType, "error", err)
	}
}
