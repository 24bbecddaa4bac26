package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/susu3304/gastobot/internal/ledger"
)

const (
	IntakePending  = "pending"
	IntakeConsumed = "consumed"
)

// IntakeItem is a collected transaction awaiting classification.
type IntakeItem struct {
	ID              int64           `json:"id"`
	SourceID        string          `json:"source_id"`
	Operator        string          `json:"operator"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	SourceTimestamp string          `json:"timestamp"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ConsumedAt      *time.Time      `json:"consumed_at,omitempty"`
}

func (it IntakeItem) Transaction() ledger.Transaction {
	return ledger.Transaction{
		SourceID:    it.SourceID,
		Amount:      it.Amount,
		Description: it.Description,
		Timestamp:   it.SourceTimestamp,
	}
}

const intakeColumns = `id, source_id, operator, amount::text, description, source_timestamp, status, created_at, consumed_at`

func scanIntake(row pgx.Row) (IntakeItem, error) {
	var it IntakeItem
	var amount string
	if err := row.Scan(&it.ID, &it.SourceID, &it.Operator, &amount, &it.Description,
		&it.SourceTimestamp, &it.Status, &it.CreatedAt, &it.ConsumedAt); err != nil {
		return IntakeItem{}, err
	}
	var err error
	it.Amount, err = decimal.NewFromString(amount)
	return it, err
}

// CreateIntakeItem stores a new pending item. An existing source id returns the stored item and false.
func (db *DB) CreateIntakeItem(ctx context.Context, operator string, tx ledger.Transaction) (IntakeItem, bool, error) {
	it, err := scanIntake(db.pool.QueryRow(ctx,
		`INSERT INTO intake_items (source_id, operator, amount, description, source_timestamp)
		 VALUES ($1, $2, $3::text::numeric, $4, $5)
		 ON CONFLICT (source_id) DO NOTHING
		 RETURNING `+intakeColumns,
		tx.SourceID, operator, tx.Amount.String(), tx.Description, tx.Timestamp,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := db.GetIntakeItem(ctx, tx.SourceID)
		return existing, false, err
	}
	if err != nil {
		return IntakeItem{}, false, fmt.Errorf("create intake item: %w", err)
	}
	return it, true, nil
}

func (db *DB) GetIntakeItem(ctx context.Context, sourceID string) (IntakeItem, error) {
	it, err := scanIntake(db.pool.QueryRow(ctx,
		`SELECT `+intakeColumns+` FROM intake_items WHERE source_id = $1`, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return IntakeItem{}, fmt.Errorf("intake item %s: %w", sourceID, ErrNotFound)
	}
	return it, err
}

// ListIntakeItems lists items with the given status, oldest first. Empty status lists all.
func (db *DB) ListIntakeItems(ctx context.Context, status string, limit int) ([]IntakeItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+intakeColumns+` FROM intake_items
		 WHERE ($1 = '' OR status = $1) ORDER BY created_at LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []IntakeItem
	for rows.Next() {
		it, err := scanIntake(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (db *DB) MarkConsumed(ctx context.Context, sourceID string) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE intake_items SET status = $2, consumed_at = CURRENT_TIMESTAMP WHERE source_id = $1`,
		sourceID, IntakeConsumed)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("intake item %s: %w", sourceID, ErrNotFound)
	}
	return nil
}
