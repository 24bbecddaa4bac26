package intake

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/inflight"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/transport"
)

type fakeClassifier struct {
	mu       sync.Mutex
	splits   []ledger.Split
	err      error
	finished []string
	asked    chan struct{}
	block    chan struct{}
}

func (f *fakeClassifier) Ask(ctx context.Context, req dialog.Request) (*dialog.Outcome, error) {
	if f.asked != nil {
		f.asked <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &dialog.Outcome{Handle: "h1", Splits: f.splits}, nil
}

func (f *fakeClassifier) Finish(_ context.Context, _ dialog.Handle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, text)
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	written []ledger.Transaction
	failOn  string
	total   decimal.Decimal
}

func (f *fakeLedger) AppendEntry(_ context.Context, tx ledger.Transaction, s ledger.Split) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.Category == f.failOn {
		return errors.New("write failed")
	}
	f.written = append(f.written, tx)
	return nil
}

func (f *fakeLedger) AccumulatedTotal(context.Context, ledger.TotalQuery) (decimal.Decimal, error) {
	return f.total, nil
}

type fakeSource struct {
	mu       sync.Mutex
	consumed []string
}

func (f *fakeSource) MarkConsumed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, id)
	return nil
}

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify(context.Context, string, string) error {
	c.n++
	return nil
}

func item() Item {
	return Item{
		ID:          "src-1",
		Operator:    Operator{Name: "Juanma", Recipient: "chan"},
		Transaction: ledger.Transaction{SourceID: "src-1", Amount: decimal.NewFromInt(100000), Description: "Exito"},
	}
}

func twoSplits() []ledger.Split {
	return []ledger.Split{
		{Category: "🏠 Casa", Subcategory: "Mercado", Scope: ledger.ScopeFamiliar, Amount: decimal.NewFromInt(60000), Payer: "Juanma", Kind: ledger.KindExpense},
		{Category: "💸 Deudas", Scope: ledger.ScopePersonal, Amount: decimal.NewFromInt(40000), Payer: "Juanma", Kind: ledger.KindExpense},
	}
}

func TestProcessSavesAndConsumes(t *testing.T) {
	c := &fakeClassifier{splits: twoSplits()}
	l := &fakeLedger{total: decimal.NewFromInt(450000)}
	src := &fakeSource{}
	p := NewProcessor(c, l, src, nil, nil, nil)

	report, err := p.Process(context.Background(), item())
	require.NoError(t, err)
	assert.Len(t, report.Saved, 2)
	assert.Equal(t, []string{"src-1"}, src.consumed)

	require.Len(t, l.written, 2)
	assert.True(t, l.written[0].Amount.Equal(decimal.NewFromInt(60000)), "each entry carries its split amount")
	assert.True(t, l.written[1].Amount.Equal(decimal.NewFromInt(40000)))

	require.Len(t, c.finished, 1)
	assert.Contains(t, c.finished[0], "Acumulado del ciclo: $450,000")
}

func TestProcessPartialFailureKeepsItemPending(t *testing.T) {
	c := &fakeClassifier{splits: twoSplits()}
	l := &fakeLedger{failOn: "💸 Deudas"}
	src := &fakeSource{}
	p := NewProcessor(c, l, src, nil, nil, nil)

	report, err := p.Process(context.Background(), item())
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Len(t, report.Saved, 1)
	assert.Len(t, report.Failed, 1)
	assert.Empty(t, src.consumed)
	assert.Len(t, l.written, 1, "written entries are not rolled back")
	require.Len(t, c.finished, 1)
	assert.Contains(t, c.finished[0], "No se pudieron guardar 1 de 2")
}

func TestProcessDeclinedConsumesWithoutWrites(t *testing.T) {
	c := &fakeClassifier{}
	l := &fakeLedger{}
	src := &fakeSource{}
	p := NewProcessor(c, l, src, nil, nil, nil)

	report, err := p.Process(context.Background(), item())
	require.NoError(t, err)
	assert.True(t, report.Declined)
	assert.Empty(t, l.written)
	assert.Empty(t, c.finished)
	assert.Equal(t, []string{"src-1"}, src.consumed)
}

func TestProcessRejectsConcurrentDuplicate(t *testing.T) {
	c := &fakeClassifier{splits: twoSplits(), asked: make(chan struct{}, 1), block: make(chan struct{})}
	p := NewProcessor(c, &fakeLedger{}, &fakeSource{}, inflight.NewLocal(), nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), item())
		done <- err
	}()
	<-c.asked

	_, err := p.Process(context.Background(), item())
	assert.ErrorIs(t, err, ErrInFlight)

	close(c.block)
	require.NoError(t, <-done)
}

func TestProcessHaltsOnTransportExhaustion(t *testing.T) {
	c := &fakeClassifier{err: transport.ErrExhausted}
	n := &countingNotifier{}
	p := NewProcessor(c, &fakeLedger{}, &fakeSource{}, nil, n, nil)

	_, err := p.Process(context.Background(), item())
	assert.ErrorIs(t, err, transport.ErrExhausted)
	assert.True(t, p.Halted())
	assert.Equal(t, 1, n.n)

	_, err = p.Process(context.Background(), item())
	assert.ErrorIs(t, err, ErrHalted)

	p.Resume()
	c.err = nil
	c.splits = twoSplits()
	_, err = p.Process(context.Background(), item())
	assert.NoError(t, err)
}
