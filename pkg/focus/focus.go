// Package focus implements the per-user focus-mode state machine: a single
// active session moves between OFF, SIMPLE, POMO_WORK, and POMO_BREAK,
// driving chat-provider status/DND, scheduler jobs, and notifier events on
// every transition.
package focus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is one of the four focus states a user's record can be in.
type State string

const (
	StateOff       State = "off"
	StateSimple    State = "simple_active"
	StatePomoWork  State = "pomodoro_work"
	StatePomoBreak State = "pomodoro_break"
)

// ChatStatus is a snapshot of the user's chat-provider status, taken on
// session entry and restored on exit.
type ChatStatus struct {
	Text  string
	Emoji string
}

// Record is the persisted FocusRecord row for one user.
type Record struct {
	UserID          uuid.UUID
	State           State
	StartedAt       *time.Time
	EndsAt          *time.Time
	CustomMessage   string
	SavedChatStatus *ChatStatus
	SessionCount    int
	TotalSessions   *int
	WorkMinutes     *int
	BreakMinutes    *int
}

// IsActive reports whether the record represents a running session.
func (r Record) IsActive() bool {
	return r.State != StateOff
}

// Settings is the persisted FocusSettings row for one user, lazily created
// with these defaults on first read.
type Settings struct {
	UserID                   uuid.UUID
	DefaultMessage           string
	WorkMinutes              int
	BreakMinutes             int
	SimpleStatus             ChatStatus
	WorkStatus               ChatStatus
	BreakStatus              ChatStatus
	BypassNotificationConfig []byte // opaque JSON blob, nil if unset
}

// DefaultSettings returns the settings a user gets before any row exists
// for them; they match the focus_settings column defaults.
func DefaultSettings(userID uuid.UUID) Settings {
	return Settings{
		UserID:      userID,
		WorkMinutes: 25,
		BreakMinutes: 5,
		SimpleStatus: ChatStatus{Text: "Focusing", Emoji: ":no_entry:"},
		WorkStatus:   ChatStatus{Text: "Deep work", Emoji: ":tomato:"},
		BreakStatus:  ChatStatus{Text: "On a break", Emoji: ":coffee:"},
	}
}

// Store persists and loads FocusRecord rows.
type Store interface {
	GetRecord(ctx context.Context, userID uuid.UUID) (Record, bool, error)
	UpsertRecord(ctx context.Context, r Record) error
}

// SettingsStore persists and loads FocusSettings rows.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID uuid.UUID) (Settings, error)
}

// Scheduler is the two call sites pkg/scheduler exposes to the state
// machine. Job-ID nonces and the pomodoro sidecar pointer are the
// scheduler's concern, not the state machine's — the machine only ever
// asks for "expire this user at T" or "transition this user at T", and
// "cancel the user's pending transition".
type Scheduler interface {
	ScheduleFocusExpire(ctx context.Context, userID uuid.UUID, fireAt time.Time) error
	SchedulePomodoroTransition(ctx context.Context, userID uuid.UUID, fireAt time.Time) error
	CancelPomodoroTransition(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Notifier is the subset of pkg/notifier's contract the state machine needs.
type Notifier interface {
	Publish(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]any) error
}

const (
	EventFocusStarted         = "focus_started"
	EventFocusEnded           = "focus_ended"
	EventPomodoroWorkStarted  = "pomodoro_work_started"
	EventPomodoroBreakStarted = "pomodoro_break_started"
	EventPomodoroComplete     = "pomodoro_complete"
)

