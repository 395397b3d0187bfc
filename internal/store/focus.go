package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/focusd/pkg/focus"
)

// GetRecord implements pkg/focus.Store.
func (p *Postgres) GetRecord(ctx context.Context, userID uuid.UUID) (focus.Record, bool, error) {
	row := p.db.QueryRow(ctx, `
		SELECT user_id, state, started_at, ends_at, custom_message,
		       saved_chat_status, session_count, total_sessions,
		       work_minutes, break_minutes
		FROM focus_records WHERE user_id = $1`, userID)

	var (
		rec       focus.Record
		savedJSON []byte
	)
	err := row.Scan(&rec.UserID, &rec.State, &rec.StartedAt, &rec.EndsAt, &rec.CustomMessage,
		&savedJSON, &rec.SessionCount, &rec.TotalSessions, &rec.WorkMinutes, &rec.BreakMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return focus.Record{}, false, nil
	}
	if err != nil {
		return focus.Record{}, false, fmt.Errorf("store: loading focus record: %w", err)
	}

	if len(savedJSON) > 0 {
		var saved focus.ChatStatus
		if err := json.Unmarshal(savedJSON, &saved); err != nil {
			return focus.Record{}, false, fmt.Errorf("store: decoding saved chat status: %w", err)
		}
		rec.SavedChatStatus = &saved
	}

	return rec, true, nil
}

// UpsertRecord implements pkg/focus.Store. The FocusRecord row is created
// lazily on first operation, per the data model's lifecycle note.
func (p *Postgres) UpsertRecord(ctx context.Context, r focus.Record) error {
	var savedJSON []byte
	if r.SavedChatStatus != nil {
		var err error
		savedJSON, err = json.Marshal(r.SavedChatStatus)
		if err != nil {
			return fmt.Errorf("store: encoding saved chat status: %w", err)
		}
	}

	_, err := p.db.Exec(ctx, `
		INSERT INTO focus_records
			(user_id, state, started_at, ends_at, custom_message,
			 saved_chat_status, session_count, total_sessions,
			 work_minutes, break_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (user_id) DO UPDATE SET
			state = EXCLUDED.state,
			started_at = EXCLUDED.started_at,
			ends_at = EXCLUDED.ends_at,
			custom_message = EXCLUDED.custom_message,
			saved_chat_status = EXCLUDED.saved_chat_status,
			session_count = EXCLUDED.session_count,
			total_sessions = EXCLUDED.total_sessions,
			work_minutes = EXCLUDED.work_minutes,
			break_minutes = EXCLUDED.break_minutes,
			updated_at = now()`,
		r.UserID, r.State, r.StartedAt, r.EndsAt, r.CustomMessage,
		savedJSON, r.SessionCount, r.TotalSessions, r.WorkMinutes, r.BreakMinutes,
	)
	if err != nil {
		return fmt.Errorf("store: upserting focus record: %w", err)
	}
	return nil
}

// ListExpiredSimpleFocusUsers implements pkg/scheduler.SweepStore.
func (p *Postgres) ListExpiredSimpleFocusUsers(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	rows, err := p.db.Query(ctx, `
		SELECT user_id FROM focus_records
		WHERE state = $1 AND ends_at IS NOT NULL AND ends_at < $2`,
		focus.StateSimple, before,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing expired focus records: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scanning expired focus user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
