package bot

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/recurring"
)

// TemplateStore is where recurring items and reviewed cycles live.
type TemplateStore interface {
	RecurringItems(ctx context.Context, operator string) ([]recurring.Item, error)
	MarkCycleReviewed(ctx context.Context, operator string, cycleStart time.Time) (bool, error)
}

type reviewStarter interface {
	Start(ctx context.Context, operator, recipient string, items []recurring.Item) error
}

// reviewWorker opens the recurring review once per billing cycle for each operator.
type reviewWorker struct {
	store     TemplateStore
	starter   reviewStarter
	operators []config.Operator
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
	stopChan  chan struct{}
	ticker    *time.Ticker
	interval  time.Duration
}

func newReviewWorker(store TemplateStore, starter reviewStarter, ops []config.Operator, loc *time.Location, interval time.Duration, logger *zap.Logger) *reviewWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &reviewWorker{
		store:     store,
		starter:   starter,
		operators: ops,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		interval:  interval,
	}
}

func (w *reviewWorker) start() {
	if w == nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	go w.loop()
}

func (w *reviewWorker) stop() {
	if w == nil {
		return
	}
	close(w.stopChan)
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

func (w *reviewWorker) loop() {
	ctx := context.Background()
	w.tick(ctx)
	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

func (w *reviewWorker) tick(ctx context.Context) {
	cycle := ledger.CycleStart(w.now().In(w.loc))
	for _, op := range w.operators {
		log := w.logger.With(zap.String("operator", op.Name), zap.Time("cycle", cycle))
		items, err := w.store.RecurringItems(ctx, op.Name)
		if err != nil {
			log.Error("review: failed to load recurring items", zap.Error(err))
			continue
		}
		if len(items) == 0 {
			continue
		}
		first, err := w.store.MarkCycleReviewed(ctx, op.Name, cycle)
		if err != nil {
			log.Error("review: failed to mark cycle", zap.Error(err))
			continue
		}
		if !first {
			continue
		}
		err = w.starter.Start(ctx, op.Name, op.ChannelID, items)
		switch {
		case errors.Is(err, recurring.ErrSessionActive):
			log.Info("review: session already active")
		case err != nil:
			log.Error("review: failed to start", zap.Error(err))
		default:
			log.Info("review: started", zap.Int("items", len(items)))
		}
	}
}
