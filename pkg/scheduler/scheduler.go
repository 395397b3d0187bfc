// Package scheduler persists keyed deferred jobs in Redis and fires them
// at-least-once at their due time. It backs the focus state machine's two
// call sites — single-session expiration and pomodoro phase transitions —
// hiding job-ID nonce generation and the pomodoro sidecar pointer from
// callers.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/focusd/internal/telemetry"
)

const (
	dueZSetKey      = "focusd:scheduler:due"
	jobKeyPrefix    = "focusd:scheduler:job:"
	sidecarPrefix   = "focusd:scheduler:pomodoro_job:"
	wakeChannel     = "focusd:scheduler:wake"
	sidecarTTL      = 24 * time.Hour
	jobKeyTTL       = 48 * time.Hour
	pollInterval    = 5 * time.Second
	jobTimeout      = 5 * time.Minute
	maxConcurrency  = 10
	pollBatchSize   = 50

	FunctionFocusExpire         = "focus_expire"
	FunctionPomodoroTransition  = "pomodoro_transition"
)

// JobFunc is a registered worker function. argument is whatever Schedule
// was called with — in this repo, always a user ID string.
type JobFunc func(ctx context.Context, argument string) error

type jobRecord struct {
	JobID        string    `json:"job_id"`
	FunctionName string    `json:"function_name"`
	Argument     string    `json:"argument"`
	FireAt       time.Time `json:"fire_at"`
}

// Scheduler is a Redis-backed keyed-timer service. One process should run
// Run (the Non-goals explicitly exclude HA beyond a single replica). The
// ZREM claim in poll lets only one poller dispatch a given due job, but
// each extra replica would also run its own backup sweep.
type Scheduler struct {
	rdb       *redis.Client
	logger    *slog.Logger
	functions map[string]JobFunc
	sem       chan struct{}
}

func New(rdb *redis.Client, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		rdb:       rdb,
		logger:    logger,
		functions: make(map[string]JobFunc),
		sem:       make(chan struct{}, maxConcurrency),
	}
}

// RegisterFunction wires a function_name to the code that runs when a job
// with that name fires. Call before Run.
func (s *Scheduler) RegisterFunction(name string, fn JobFunc) {
	s.functions[name] = fn
}

func newNonce() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ScheduleFocusExpire schedules a self-cancelling focus-expiration worker
// for userID at fireAt under a fresh nonce job ID.
func (s *Scheduler) ScheduleFocusExpire(ctx context.Context, userID uuid.UUID, fireAt time.Time) error {
	jobID := fmt.Sprintf("focus_expire_%s_%s", userID, newNonce())
	return s.schedule(ctx, jobID, fireAt, FunctionFocusExpire, userID.String())
}

// SchedulePomodoroTransition schedules a phase-transition worker for userID
// at fireAt and records the job ID as the user's current pending
// transition, replacing whatever was recorded before.
func (s *Scheduler) SchedulePomodoroTransition(ctx context.Context, userID uuid.UUID, fireAt time.Time) error {
	jobID := fmt.Sprintf("pomodoro_transition_%s_%s", userID, newNonce())
	if err := s.schedule(ctx, jobID, fireAt, FunctionPomodoroTransition, userID.String()); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, sidecarPrefix+userID.String(), jobID, sidecarTTL).Err(); err != nil {
		return fmt.Errorf("scheduler: recording pomodoro sidecar: %w", err)
	}
	return nil
}

// CancelPomodoroTransition removes userID's pending transition job, if any,
// via its sidecar pointer. Returns whether a job was actually removed.
func (s *Scheduler) CancelPomodoroTransition(ctx context.Context, userID uuid.UUID) (bool, error) {
	jobID, err := s.rdb.GetDel(ctx, sidecarPrefix+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scheduler: reading pomodoro sidecar: %w", err)
	}
	return s.cancel(ctx, jobID)
}

func (s *Scheduler) schedule(ctx context.Context, jobID string, fireAt time.Time, functionName, argument string) error {
	rec := jobRecord{JobID: jobID, FunctionName: functionName, Argument: argument, FireAt: fireAt}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("scheduler: marshaling job record: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+jobID, payload, jobKeyTTL)
	pipe.ZAdd(ctx, dueZSetKey, redis.Z{Score: float64(fireAt.Unix()), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("scheduler: persisting job: %w", err)
	}

	telemetry.SchedulerJobsScheduledTotal.WithLabelValues(functionName).Inc()
	s.rdb.Publish(ctx, wakeChannel, jobID)
	return nil
}

func (s *Scheduler) cancel(ctx context.Context, jobID string) (bool, error) {
	removed, err := s.rdb.ZRem(ctx, dueZSetKey, jobID).Result()
	if err != nil {
		return false, fmt.Errorf("scheduler: removing job from due set: %w", err)
	}
	if err := s.rdb.Del(ctx, jobKeyPrefix+jobID).Err(); err != nil {
		s.logger.Warn("scheduler: deleting cancelled job record", "job_id", jobID, "error", err)
	}
	return removed > 0, nil
}

// Run polls the due set on a ticker, woken early by the pubsub event that
// schedule publishes, and dispatches due jobs up to maxConcurrency at a time. It blocks
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "poll_interval", pollInterval, "max_concurrency", maxConcurrency)

	pubsub := s.rdb.Subscribe(ctx, wakeChannel)
	defer pubsub.Close()
	wakeCh := pubsub.Channel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-wakeCh:
			s.poll(ctx)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	now := time.Now()
	jobIDs, err := s.rdb.ZRangeByScore(ctx, dueZSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: pollBatchSize,
	}).Result()
	if err != nil {
		s.logger.Error("scheduler: polling due set", "error", err)
		return
	}

	for _, jobID := range jobIDs {
		// Claim via ZREM before dispatch: a single replica, but this keeps a
		// job from being dispatched twice within the same poll batch.
		removed, err := s.rdb.ZRem(ctx, dueZSetKey, jobID).Result()
		if err != nil || removed == 0 {
			continue
		}

		payload, err := s.rdb.Get(ctx, jobKeyPrefix+jobID).Result()
		if errors.Is(err, redis.Nil) {
			continue // cancelled between ZRangeByScore and claim
		}
		if err != nil {
			s.logger.Error("scheduler: loading job record", "job_id", jobID, "error", err)
			continue
		}

		var rec jobRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			s.logger.Error("scheduler: decoding job record", "job_id", jobID, "error", err)
			continue
		}

		s.dispatch(rec)
	}
}

// dispatch runs a job on its own background context, independent of the
// poll loop's context — per the scheduler's worker-re-entry contract, a
// fired job must not inherit cancellation from whatever triggered the poll.
func (s *Scheduler) dispatch(rec jobRecord) {
	fn, ok := s.functions[rec.FunctionName]
	if !ok {
		s.logger.Error("scheduler: no registered function", "job_id", rec.JobID, "function_name", rec.FunctionName)
		return
	}

	s.sem <- struct{}{}
	go func() {
		defer func() { <-s.sem }()
		defer func() { _ = s.rdb.Del(context.Background(), jobKeyPrefix+rec.JobID).Err() }()

		jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := fn(jobCtx, rec.Argument); err != nil {
			s.logger.Error("scheduler: job failed", "job_id", rec.JobID, "function_name", rec.FunctionName, "error", err)
			telemetry.SchedulerJobsFiredTotal.WithLabelValues(rec.FunctionName, "error").Inc()
			return
		}
		telemetry.SchedulerJobsFiredTotal.WithLabelValues(rec.FunctionName, "ok").Inc()
	}()
}
