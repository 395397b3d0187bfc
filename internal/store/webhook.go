package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/pkg/notifier"
)

// ListEnabledSubscriptions implements pkg/notifier.WebhookStore. A
// subscription with an empty event_types array matches every event type.
func (p *Postgres) ListEnabledSubscriptions(ctx context.Context, userID uuid.UUID, eventType string) ([]notifier.WebhookSubscription, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, user_id, url, enabled, event_types
		FROM webhook_subscriptions
		WHERE user_id = $1 AND enabled = true
		  AND (cardinality(event_types) = 0 OR $2 = ANY(event_types))`,
		userID, eventType,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []notifier.WebhookSubscription
	for rows.Next() {
		var s notifier.WebhookSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.URL, &s.Enabled, &s.EventTypes); err != nil {
			return nil, fmt.Errorf("store: scanning webhook subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// CreateSubscription implements pkg/notifier.SubscriptionStore.
func (p *Postgres) CreateSubscription(ctx context.Context, sub notifier.WebhookSubscription) (notifier.WebhookSubscription, error) {
	row := p.db.QueryRow(ctx, `
		INSERT INTO webhook_subscriptions (user_id, url, enabled, event_types)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, url, enabled, event_types`,
		sub.UserID, sub.URL, sub.Enabled, sub.EventTypes,
	)

	var out notifier.WebhookSubscription
	if err := row.Scan(&out.ID, &out.UserID, &out.URL, &out.Enabled, &out.EventTypes); err != nil {
		return notifier.WebhookSubscription{}, fmt.Errorf("store: creating webhook subscription: %w", err)
	}
	return out, nil
}

// ListSubscriptions implements pkg/notifier.SubscriptionStore.
func (p *Postgres) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]notifier.WebhookSubscription, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, user_id, url, enabled, event_types
		FROM webhook_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: listing webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []notifier.WebhookSubscription
	for rows.Next() {
		var s notifier.WebhookSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.URL, &s.Enabled, &s.EventTypes); err != nil {
			return nil, fmt.Errorf("store: scanning webhook subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// DeleteSubscription implements pkg/notifier.SubscriptionStore.
func (p *Postgres) DeleteSubscription(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `
		DELETE FROM webhook_subscriptions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("store: deleting webhook subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: webhook subscription not found")
	}
	return nil
}
