package focus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/pkg/chatprovider"
)

// fakeStore is an in-memory FocusRecord store, one row per user.
type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[uuid.UUID]Record)}
}

func (s *fakeStore) GetRecord(_ context.Context, userID uuid.UUID) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	return rec, ok, nil
}

func (s *fakeStore) UpsertRecord(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.UserID] = r
	return nil
}

type fakeSettingsStore struct{}

func (fakeSettingsStore) GetSettings(_ context.Context, userID uuid.UUID) (Settings, error) {
	s := DefaultSettings(userID)
	s.SimpleStatus = ChatStatus{Text: "focusing", Emoji: ":no_entry:"}
	s.WorkStatus = ChatStatus{Text: "deep work", Emoji: ":tomato:"}
	s.BreakStatus = ChatStatus{Text: "on break", Emoji: ":coffee:"}
	return s, nil
}

// fakeScheduler records the calls the state machine makes without firing
// anything itself — phase advances are driven directly by the tests.
type fakeScheduler struct {
	mu               sync.Mutex
	expireScheduled  []time.Time
	transitionFireAt map[uuid.UUID]time.Time
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{transitionFireAt: make(map[uuid.UUID]time.Time)}
}

func (s *fakeScheduler) ScheduleFocusExpire(_ context.Context, _ uuid.UUID, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireScheduled = append(s.expireScheduled, fireAt)
	return nil
}

func (s *fakeScheduler) SchedulePomodoroTransition(_ context.Context, userID uuid.UUID, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionFireAt[userID] = fireAt
	return nil
}

func (s *fakeScheduler) CancelPomodoroTransition(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.transitionFireAt[userID]
	delete(s.transitionFireAt, userID)
	return existed, nil
}

// fakeNotifier records published events in order.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Publish(_ context.Context, _ uuid.UUID, eventType string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return nil
}

func (n *fakeNotifier) eventLog() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// fakeChat is a no-op chatprovider.Provider that records SetProfile/SetDND
// calls and always reports an empty profile snapshot.
type fakeChat struct {
	mu          sync.Mutex
	profiles    []chatprovider.Profile
	dndCalls    int
	endDNDCalls int
}

func (c *fakeChat) GetProfile(_ context.Context, _ uuid.UUID) (chatprovider.Profile, error) {
	return chatprovider.Profile{}, nil
}

func (c *fakeChat) SetProfile(_ context.Context, _ uuid.UUID, profile chatprovider.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = append(c.profiles, profile)
	return nil
}

func (c *fakeChat) SetDND(_ context.Context, _ uuid.UUID, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dndCalls++
	return nil
}

func (c *fakeChat) EndDND(_ context.Context, _ uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endDNDCalls++
	return nil
}

func newTestMachine() (*Machine, *fakeStore, *fakeScheduler, *fakeNotifier) {
	store := newFakeStore()
	sched := newFakeScheduler()
	notif := &fakeNotifier{}
	chat := &fakeChat{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMachine(store, fakeSettingsStore{}, sched, notif, chat, logger), store, sched, notif
}

func TestEnableDisable(t *testing.T) {
	ctx := context.Background()
	m, store, sched, notif := newTestMachine()
	userID := uuid.New()

	dur := 30
	rec, err := m.Enable(ctx, userID, EnableOptions{DurationMinutes: &dur, CustomMessage: "heads down"})
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if rec.State != StateSimple {
		t.Fatalf("state = %v, want %v", rec.State, StateSimple)
	}
	if rec.EndsAt == nil {
		t.Fatal("EndsAt unset after Enable with duration")
	}
	if got := notif.eventLog(); len(got) != 1 || got[0] != EventFocusStarted {
		t.Fatalf("events = %v, want [focus_started]", got)
	}
	if len(sched.expireScheduled) != 1 {
		t.Fatalf("expire jobs scheduled = %d, want 1", len(sched.expireScheduled))
	}

	if _, err := m.Enable(ctx, userID, EnableOptions{}); err != ErrAlreadyActive {
		t.Fatalf("second Enable error = %v, want ErrAlreadyActive", err)
	}

	disabled, err := m.Disable(ctx, userID)
	if err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if disabled.State != StateOff {
		t.Fatalf("state after Disable = %v, want off", disabled.State)
	}
	if disabled.EndsAt != nil {
		t.Fatal("EndsAt should be nil after Disable")
	}

	// Idempotence: disabling an already-off session is a no-op.
	again, err := m.Disable(ctx, userID)
	if err != nil {
		t.Fatalf("second Disable: %v", err)
	}
	if again.State != StateOff {
		t.Fatalf("state after second Disable = %v, want off", again.State)
	}
	if got := notif.eventLog(); len(got) != 2 || got[1] != EventFocusEnded {
		t.Fatalf("events = %v, want [focus_started focus_ended]", got)
	}

	rec2, ok, err := store.GetRecord(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("GetRecord after disable: %v, %v", rec2, err)
	}
	if rec2.State != StateOff {
		t.Fatalf("persisted state = %v, want off", rec2.State)
	}
}

func TestEnableDurationOutOfRange(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestMachine()
	bad := 500
	if _, err := m.Enable(ctx, uuid.New(), EnableOptions{DurationMinutes: &bad}); err == nil {
		t.Fatal("expected ErrInvalidDuration")
	}
}

func TestOnExpireIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _, _, notif := newTestMachine()
	userID := uuid.New()

	// Firing on_expire with no active session is a no-op.
	if _, err := m.OnExpire(ctx, userID); err != nil {
		t.Fatalf("OnExpire on OFF: %v", err)
	}
	if got := notif.eventLog(); len(got) != 0 {
		t.Fatalf("events after no-op OnExpire = %v, want none", got)
	}

	dur := 30
	if _, err := m.Enable(ctx, userID, EnableOptions{DurationMinutes: &dur}); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	// Session hasn't reached its end time yet: self-cancel, no effect.
	if _, err := m.OnExpire(ctx, userID); err != nil {
		t.Fatalf("OnExpire before ends_at: %v", err)
	}
	if got := notif.eventLog(); len(got) != 1 {
		t.Fatalf("events before expiry = %v, want only focus_started", got)
	}
}

// Pomodoro cap scenario from the spec: start_pomodoro(work=25, break=5,
// total=2) should produce WORK#1, BREAK, WORK#2, then OFF on the phase
// that would otherwise be the second break.
func TestPomodoroSessionCap(t *testing.T) {
	ctx := context.Background()
	m, _, sched, notif := newTestMachine()
	userID := uuid.New()

	work, brk, total := 25, 5, 2
	rec, err := m.StartPomodoro(ctx, userID, StartPomodoroOptions{WorkMinutes: &work, BreakMinutes: &brk, TotalSessions: &total})
	if err != nil {
		t.Fatalf("StartPomodoro: %v", err)
	}
	if rec.State != StatePomoWork || rec.SessionCount != 1 {
		t.Fatalf("rec = %+v, want state=POMO_WORK session_count=1", rec)
	}

	rec, err = m.OnTransition(ctx, userID) // -> BREAK
	if err != nil {
		t.Fatalf("OnTransition #1: %v", err)
	}
	if rec.State != StatePomoBreak {
		t.Fatalf("state after first transition = %v, want POMO_BREAK", rec.State)
	}

	rec, err = m.OnTransition(ctx, userID) // -> WORK#2
	if err != nil {
		t.Fatalf("OnTransition #2: %v", err)
	}
	if rec.State != StatePomoWork || rec.SessionCount != 2 {
		t.Fatalf("rec after 2nd transition = %+v, want state=POMO_WORK session_count=2", rec)
	}

	rec, err = m.OnTransition(ctx, userID) // at cap -> OFF
	if err != nil {
		t.Fatalf("OnTransition #3: %v", err)
	}
	if rec.State != StateOff {
		t.Fatalf("state after cap reached = %v, want OFF", rec.State)
	}

	want := []string{
		EventPomodoroWorkStarted,
		EventPomodoroBreakStarted,
		EventPomodoroWorkStarted,
		EventPomodoroComplete,
	}
	got := notif.eventLog()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, ok := sched.transitionFireAt[userID]; ok {
		t.Error("transition job still pending after session ended")
	}
}

// Skip scenario: skip_phase advances early and reschedules relative to the
// skip time, not the originally-scheduled one.
func TestSkipPhaseReschedules(t *testing.T) {
	ctx := context.Background()
	m, _, sched, notif := newTestMachine()
	userID := uuid.New()

	work, brk, total := 25, 5, 3
	if _, err := m.StartPomodoro(ctx, userID, StartPomodoroOptions{WorkMinutes: &work, BreakMinutes: &brk, TotalSessions: &total}); err != nil {
		t.Fatalf("StartPomodoro: %v", err)
	}
	firstFireAt := sched.transitionFireAt[userID]

	rec, err := m.SkipPhase(ctx, userID)
	if err != nil {
		t.Fatalf("SkipPhase: %v", err)
	}
	if rec.State != StatePomoBreak {
		t.Fatalf("state after skip = %v, want POMO_BREAK", rec.State)
	}

	secondFireAt := sched.transitionFireAt[userID]
	if !secondFireAt.Before(firstFireAt) {
		t.Errorf("skip should reschedule sooner than the original transition: got %v, want before %v", secondFireAt, firstFireAt)
	}

	want := []string{EventPomodoroWorkStarted, EventPomodoroBreakStarted}
	if got := notif.eventLog(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestGetStatusLazilyExpiresSimpleSession(t *testing.T) {
	ctx := context.Background()
	m, store, _, notif := newTestMachine()
	userID := uuid.New()

	past := time.Now().Add(-time.Minute)
	started := past.Add(-30 * time.Minute)
	if err := store.UpsertRecord(ctx, Record{
		UserID:    userID,
		State:     StateSimple,
		StartedAt: &started,
		EndsAt:    &past,
	}); err != nil {
		t.Fatalf("seeding expired record: %v", err)
	}

	rec, err := m.GetStatus(ctx, userID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if rec.State != StateOff {
		t.Fatalf("state = %v, want OFF after lazy expiration", rec.State)
	}
	if got := notif.eventLog(); len(got) != 1 || got[0] != EventFocusEnded {
		t.Fatalf("events = %v, want [focus_ended]", got)
	}
}

func TestGetStatusDoesNotExpirePomodoroPhase(t *testing.T) {
	ctx := context.Background()
	m, store, _, notif := newTestMachine()
	userID := uuid.New()

	past := time.Now().Add(-time.Minute)
	started := past.Add(-25 * time.Minute)
	work, brk := 25, 5
	if err := store.UpsertRecord(ctx, Record{
		UserID:       userID,
		State:        StatePomoWork,
		StartedAt:    &started,
		EndsAt:       &past,
		SessionCount: 1,
		WorkMinutes:  &work,
		BreakMinutes: &brk,
	}); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	// Pomodoro phase end is advisory until the scheduler or SkipPhase acts —
	// a read must not trigger a transition.
	rec, err := m.GetStatus(ctx, userID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if rec.State != StatePomoWork {
		t.Fatalf("state = %v, want POMO_WORK unchanged by a read", rec.State)
	}
	if got := notif.eventLog(); len(got) != 0 {
		t.Fatalf("events = %v, want none", got)
	}
}
