package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/recurring"
)

var ErrTemplateExists = errors.New("recurring template already exists")

// RecurringItems returns the operator's templates in review order.
func (db *DB) RecurringItems(ctx context.Context, operator string) ([]recurring.Item, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT name, amount::text, category, scope, owner FROM recurring_templates
		 WHERE operator = $1 ORDER BY position, created_at, name`, operator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []recurring.Item
	for rows.Next() {
		var it recurring.Item
		var amount, scope string
		if err := rows.Scan(&it.Name, &amount, &it.Category, &scope, &it.Owner); err != nil {
			return nil, err
		}
		if it.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		it.Scope = ledger.Scope(scope)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (db *DB) AddRecurringItem(ctx context.Context, operator string, it recurring.Item) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO recurring_templates (operator, name, amount, category, scope, owner, position)
		 VALUES ($1, $2, $3::text::numeric, $4, $5, $6,
		         (SELECT COALESCE(MAX(position), 0) + 1 FROM recurring_templates WHERE operator = $1))`,
		operator, it.Name, it.Amount.String(), it.Category, string(it.Scope), it.Owner,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrTemplateExists
	}
	return err
}

func (db *DB) UpdateRecurringItem(ctx context.Context, operator, name string, it recurring.Item) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE recurring_templates SET amount = $3::text::numeric, category = $4, scope = $5, owner = $6
		 WHERE operator = $1 AND name = $2`,
		operator, name, it.Amount.String(), it.Category, string(it.Scope), it.Owner,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recurring template %q: %w", name, ErrNotFound)
	}
	return nil
}

func (db *DB) RemoveRecurringItem(ctx context.Context, operator, name string) error {
	result, err := db.pool.Exec(ctx,
		"DELETE FROM recurring_templates WHERE operator = $1 AND name = $2", operator, name)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recurring template %q: %w", name, ErrNotFound)
	}
	return nil
}

// MarkCycleReviewed records that the operator's review for the cycle has started.
// It reports false when the cycle was already marked.
func (db *DB) MarkCycleReviewed(ctx context.Context, operator string, cycleStart time.Time) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`INSERT INTO recurring_reviews (operator, cycle_start) VALUES ($1, $2)
		 ON CONFLICT (operator, cycle_start) DO NOTHING`,
		operator, cycleStart,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}
