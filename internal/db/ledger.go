package db

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/susu3304/gastobot/internal/ledger"
)

// LedgerEntry is one stored row, mirroring the household sheet columns.
type LedgerEntry struct {
	ID              int64           `json:"id"`
	OccurredAt      time.Time       `json:"occurred_at"`
	SourceTimestamp string          `json:"source_timestamp"`
	Payer           string          `json:"payer"`
	Scope           string          `json:"scope"`
	Kind            string          `json:"kind"`
	Category        string          `json:"category"`
	Subcategory     string          `json:"subcategory"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	SourceID        string          `json:"source_id"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// AppendEntry writes one split. Entries are append-only.
func (db *DB) AppendEntry(ctx context.Context, tx ledger.Transaction, s ledger.Split) error {
	occurred := ledger.ParseTimestamp(tx.Timestamp, db.loc, db.now())
	_, err := db.pool.Exec(ctx,
		`INSERT INTO ledger_entries
		 (occurred_at, source_timestamp, payer, scope, kind, category, subcategory, amount, description, source_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10)`,
		occurred, tx.Timestamp, s.Payer, string(s.Scope), string(s.Kind), s.Category, s.Subcategory,
		s.Amount.String(), tx.Description, tx.SourceID,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// AccumulatedTotal sums matching entries since the start of the current billing cycle.
func (db *DB) AccumulatedTotal(ctx context.Context, q ledger.TotalQuery) (decimal.Decimal, error) {
	since := ledger.CycleStart(db.now().In(db.loc))
	var sum string
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM ledger_entries
		 WHERE occurred_at >= $1
		   AND category = $2
		   AND ($3 = '' OR subcategory = $3)
		   AND scope = $4
		   AND kind = $5
		   AND ($6 = '' OR lower(payer) = lower($6))`,
		since, q.Category, q.Subcategory, string(q.Scope), string(q.Kind), q.Payer,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("accumulated total: %w", err)
	}
	return decimal.NewFromString(sum)
}

// RecentEntries lists the latest entries, newest first.
func (db *DB) RecentEntries(ctx context.Context, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, occurred_at, source_timestamp, payer, scope, kind, category, subcategory,
		        amount::text, description, source_id, recorded_at
		 FROM ledger_entries ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.SourceTimestamp, &e.Payer, &e.Scope, &e.Kind,
			&e.Category, &e.Subcategory, &amount, &e.Description, &e.SourceID, &e.RecordedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
