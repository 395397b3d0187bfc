package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SweepStore is the narrow read the backup sweep needs: simple-session
// users whose phase has already ended. Pomodoro phases are never swept —
// they are driven exclusively by the scheduler or SkipPhase, never by a
// read, per the focus state machine's contract.
type SweepStore interface {
	ListExpiredSimpleFocusUsers(ctx context.Context, before time.Time) ([]uuid.UUID, error)
}

// RunSweep fires FunctionFocusExpire for every overdue simple-session user
// at :00, :15, :30, and :45 of every hour, providing eventual convergence
// for expirations the scheduled job missed (process restart, lost Redis
// state, clock skew). The fired function is self-checking, so a duplicate
// sweep hit on an already-closed session is a no-op.
func (s *Scheduler) RunSweep(ctx context.Context, store SweepStore) error {
	s.logger.Info("backup sweep started")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup sweep stopped")
			return nil
		case now := <-ticker.C:
			if now.Minute()%15 != 0 {
				continue
			}
			s.sweepOnce(ctx, store, now)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context, store SweepStore, now time.Time) {
	userIDs, err := store.ListExpiredSimpleFocusUsers(ctx, now)
	if err != nil {
		s.logger.Error("backup sweep: listing expired focus records", "error", err)
		return
	}
	if len(userIDs) == 0 {
		return
	}

	s.logger.Info("backup sweep firing overdue expirations", "count", len(userIDs))
	fn, ok := s.functions[FunctionFocusExpire]
	if !ok {
		s.logger.Error("backup sweep: no registered focus_expire function")
		return
	}

	for _, userID := range userIDs {
		jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if err := fn(jobCtx, userID.String()); err != nil {
			s.logger.Error("backup sweep: firing expiration", "user_id", userID, "error", err)
		}
		cancel()
	}
}
