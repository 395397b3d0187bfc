// Package store implements this repository's persistence interfaces
// (pkg/focus.Store, pkg/focus.SettingsStore, pkg/tokenvault.Store,
// pkg/tokenvault.KeyStore, pkg/tokenvault.AppConfigStore,
// pkg/notifier.WebhookStore, pkg/scheduler.SweepStore) against Postgres
// with raw pgx queries, in the style of pkg/pat/store.go and
// pkg/escalation.Engine — there is no sqlc-generated internal/db package
// in this repo, so these queries are hand-written rather than fabricating
// a code generator.
package store

import "github.com/jackc/pgx/v5/pgxpool"

// Postgres is the shared handle every repository in this package embeds.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}
