package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/focusd/pkg/focus"
)

// GetSettings implements pkg/focus.SettingsStore. A user with no row yet
// gets the defaults, created lazily on first read.
func (p *Postgres) GetSettings(ctx context.Context, userID uuid.UUID) (focus.Settings, error) {
	row := p.db.QueryRow(ctx, `
		SELECT user_id, default_message, work_minutes, break_minutes,
		       simple_status_text, simple_status_emoji,
		       work_status_text, work_status_emoji,
		       break_status_text, break_status_emoji,
		       bypass_notification_config
		FROM focus_settings WHERE user_id = $1`, userID)

	var s focus.Settings
	err := row.Scan(&s.UserID, &s.DefaultMessage, &s.WorkMinutes, &s.BreakMinutes,
		&s.SimpleStatus.Text, &s.SimpleStatus.Emoji,
		&s.WorkStatus.Text, &s.WorkStatus.Emoji,
		&s.BreakStatus.Text, &s.BreakStatus.Emoji,
		&s.BypassNotificationConfig,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		defaults := focus.DefaultSettings(userID)
		if err := p.createDefaultSettings(ctx, defaults); err != nil {
			return focus.Settings{}, err
		}
		return defaults, nil
	}
	if err != nil {
		return focus.Settings{}, fmt.Errorf("store: loading focus settings: %w", err)
	}
	return s, nil
}

func (p *Postgres) createDefaultSettings(ctx context.Context, s focus.Settings) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO focus_settings (user_id, default_message, work_minutes, break_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		s.UserID, s.DefaultMessage, s.WorkMinutes, s.BreakMinutes,
	)
	if err != nil {
		return fmt.Errorf("store: creating default focus settings: %w", err)
	}
	return nil
}
