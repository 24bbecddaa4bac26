package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type DB struct {
	pool *pgxpool.Pool
	loc  *time.Location
	now  func() time.Time
}

func New(ctx context.Context, databaseURL string, loc *time.Location) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if loc == nil {
		loc = time.Local
	}
	return &DB{pool: pool, loc: loc, now: time.Now}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the tables if they do not exist.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			occurred_at TIMESTAMPTZ NOT NULL,
			source_timestamp TEXT NOT NULL DEFAULT '',
			payer TEXT NOT NULL,
			scope TEXT NOT NULL,
			kind TEXT NOT NULL,
			category TEXT NOT NULL,
			subcategory TEXT NOT NULL DEFAULT '',
			amount NUMERIC(16, 2) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source_id TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_cycle ON ledger_entries(category, scope, kind, occurred_at);

		CREATE TABLE IF NOT EXISTS recurring_templates (
			operator TEXT NOT NULL,
			name TEXT NOT NULL,
			amount NUMERIC(16, 2) NOT NULL,
			category TEXT NOT NULL,
			scope TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			position INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (operator, name)
		);

		CREATE TABLE IF NOT EXISTS recurring_reviews (
			operator TEXT NOT NULL,
			cycle_start DATE NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (operator, cycle_start)
		);

		CREATE TABLE IF NOT EXISTS intake_items (
			id BIGSERIAL PRIMARY KEY,
			source_id TEXT NOT NULL UNIQUE,
			operator TEXT NOT NULL,
			amount NUMERIC(16, 2) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source_timestamp TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			consumed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_intake_items_status ON intake_items(status, created_at);
	`)
	return err
}
