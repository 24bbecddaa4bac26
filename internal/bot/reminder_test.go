package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/recurring"
)

type fakeTemplates struct {
	items    map[string][]recurring.Item
	reviewed map[string]bool
}

func (f *fakeTemplates) RecurringItems(_ context.Context, operator string) ([]recurring.Item, error) {
	return f.items[operator], nil
}

func (f *fakeTemplates) MarkCycleReviewed(_ context.Context, operator string, cycle time.Time) (bool, error) {
	key := operator + cycle.Format("2006-01-02")
	if f.reviewed[key] {
		return false, nil
	}
	f.reviewed[key] = true
	return true, nil
}

type fakeStarter struct {
	mu     sync.Mutex
	starts []string
}

func (f *fakeStarter) Start(_ context.Context, operator, recipient string, _ []recurring.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, operator+"@"+recipient)
	return nil
}

func TestReviewWorkerStartsOncePerCycle(t *testing.T) {
	store := &fakeTemplates{
		items:    map[string][]recurring.Item{"Juanma": {{Name: "Arriendo", Amount: decimal.NewFromInt(1)}}},
		reviewed: map[string]bool{},
	}
	starter := &fakeStarter{}
	ops := []config.Operator{{Name: "Juanma", ChannelID: "111"}, {Name: "Sara", ChannelID: "222"}}
	w := newReviewWorker(store, starter, ops, time.UTC, time.Hour, zap.NewNop())

	now := time.Date(2026, 10, 26, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	w.tick(context.Background())
	w.tick(context.Background())
	assert.Equal(t, []string{"Juanma@111"}, starter.starts, "operators without templates are skipped")

	now = time.Date(2026, 11, 24, 9, 0, 0, 0, time.UTC)
	w.tick(context.Background())
	assert.Len(t, starter.starts, 1, "still the same cycle")

	now = time.Date(2026, 11, 25, 0, 0, 0, 0, time.UTC)
	w.tick(context.Background())
	assert.Len(t, starter.starts, 2)
}
