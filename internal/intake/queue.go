package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/db"
	"github.com/susu3304/gastobot/internal/ledger"
)

var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrAlreadyConsumed = errors.New("transaction already recorded")
)

// Store persists intake items.
type Store interface {
	CreateIntakeItem(ctx context.Context, operator string, tx ledger.Transaction) (db.IntakeItem, bool, error)
	GetIntakeItem(ctx context.Context, sourceID string) (db.IntakeItem, error)
	ListIntakeItems(ctx context.Context, status string, limit int) ([]db.IntakeItem, error)
}

type Operators interface {
	OperatorByName(name string) (config.Operator, bool)
}

// Queue accepts transactions from collectors and classifies each one in the background.
type Queue struct {
	store     Store
	processor *Processor
	operators Operators
	logger    *zap.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

func NewQueue(ctx context.Context, store Store, p *Processor, ops Operators, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: store, processor: p, operators: ops, logger: logger, ctx: ctx}
}

// Submit stores a transaction for operator and starts its dialog.
// A known source id is not prompted again.
func (q *Queue) Submit(ctx context.Context, operator string, tx ledger.Transaction) (db.IntakeItem, error) {
	op, ok := q.operators.OperatorByName(operator)
	if !ok {
		return db.IntakeItem{}, fmt.Errorf("%w: %s", ErrUnknownOperator, operator)
	}
	if !tx.Amount.IsPositive() {
		return db.IntakeItem{}, fmt.Errorf("amount must be positive")
	}
	if tx.SourceID == "" {
		tx.SourceID = uuid.NewString()
	}
	item, created, err := q.store.CreateIntakeItem(ctx, op.Name, tx)
	if err != nil {
		return db.IntakeItem{}, err
	}
	if !created {
		q.logger.Info("duplicate intake ignored", zap.String("source", tx.SourceID), zap.String("status", item.Status))
		return item, nil
	}
	q.dispatch(op, item)
	return item, nil
}

// Retry prompts a pending item again.
func (q *Queue) Retry(ctx context.Context, sourceID string) (db.IntakeItem, error) {
	item, err := q.store.GetIntakeItem(ctx, sourceID)
	if err != nil {
		return db.IntakeItem{}, err
	}
	if item.Status == db.IntakeConsumed {
		return item, ErrAlreadyConsumed
	}
	op, ok := q.operators.OperatorByName(item.Operator)
	if !ok {
		return item, fmt.Errorf("%w: %s", ErrUnknownOperator, item.Operator)
	}
	q.dispatch(op, item)
	return item, nil
}

// ResumePending prompts every pending item, for example after a restart.
func (q *Queue) ResumePending(ctx context.Context) (int, error) {
	items, err := q.store.ListIntakeItems(ctx, db.IntakePending, 500)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		op, ok := q.operators.OperatorByName(item.Operator)
		if !ok {
			q.logger.Warn("pending item for unknown operator", zap.String("source", item.SourceID), zap.String("operator", item.Operator))
			continue
		}
		q.dispatch(op, item)
		n++
	}
	return n, nil
}

func (q *Queue) Pending(ctx context.Context) ([]db.IntakeItem, error) {
	return q.store.ListIntakeItems(ctx, db.IntakePending, 500)
}

// Halted reports whether intake stopped after a messenger outage.
func (q *Queue) Halted() bool { return q.processor.Halted() }

func (q *Queue) Resume() { q.processor.Resume() }

// Wait blocks until every dispatched item has finished.
func (q *Queue) Wait() { q.wg.Wait() }

func (q *Queue) dispatch(op config.Operator, item db.IntakeItem) {
	it := Item{
		ID:          item.SourceID,
		Operator:    Operator{Name: op.Name, Recipient: op.ChannelID},
		Transaction: item.Transaction(),
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		report, err := q.processor.Process(q.ctx, it)
		log := q.logger.With(zap.String("source", it.ID))
		switch {
		case errors.Is(err, ErrInFlight):
			log.Info("item already in a dialog")
		case err != nil:
			log.Error("intake failed", zap.Error(err), zap.Int("saved", len(report.Saved)), zap.Int("failed", len(report.Failed)))
		}
	}()
}
