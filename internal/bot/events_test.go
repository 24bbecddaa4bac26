package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/recurring"
	"github.com/susu3304/gastobot/internal/taxonomy"
)

type fakeMessenger struct {
	mu    sync.Mutex
	n     int
	sent  []chat.MessageRef
	texts map[string]string
}

func newFakeMessenger() *fakeMessenger { return &fakeMessenger{texts: map[string]string{}} }

func (f *fakeMessenger) SendPrompt(_ context.Context, recipient, text string, _ chat.Keyboard) (chat.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	ref := chat.MessageRef{ChannelID: recipient, MessageID: fmt.Sprintf("m%d", f.n)}
	f.sent = append(f.sent, ref)
	f.texts[ref.MessageID] = text
	return ref, nil
}

func (f *fakeMessenger) EditMessage(_ context.Context, ref chat.MessageRef, text string, _ chat.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[ref.MessageID] = text
	return nil
}

func (f *fakeMessenger) text(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[id]
}

type memLedger struct {
	mu      sync.Mutex
	amounts []decimal.Decimal
}

func (l *memLedger) AppendEntry(_ context.Context, _ ledger.Transaction, s ledger.Split) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.amounts = append(l.amounts, s.Amount)
	return nil
}

func (l *memLedger) AccumulatedTotal(context.Context, ledger.TotalQuery) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type fixture struct {
	bot       *Bot
	messenger *fakeMessenger
	dialogs   *dialog.Service
	recurring *recurring.Service
	ledger    *memLedger
}

func newFixture() *fixture {
	m := newFakeMessenger()
	l := &memLedger{}
	dialogs := dialog.NewService(dialog.NewMachine(taxonomy.Default()), m, nil)
	rec := recurring.NewService(l, m, nil)
	cfg := &config.Config{Operators: []config.Operator{{Name: "Juanma", ChannelID: "111"}}}
	b := New(nil, Deps{Config: cfg, Dialogs: dialogs, Recurring: rec, Messenger: m})
	return &fixture{bot: b, messenger: m, dialogs: dialogs, recurring: rec, ledger: l}
}

func openWaiting(t *testing.T, reg *dialog.Registry, recipient string) {
	t.Helper()
	h, _ := reg.Open(dialog.State{Recipient: recipient, Total: decimal.NewFromInt(100)})
	require.NoError(t, reg.Update(h, func(st *dialog.State) error {
		st.Status = dialog.StatusWaitingAmount
		return nil
	}))
}

func TestRouteButtonDeclinesDialog(t *testing.T) {
	f := newFixture()
	done := make(chan *dialog.Outcome, 1)
	go func() {
		out, err := f.dialogs.Ask(context.Background(), dialog.Request{
			Recipient:   "111",
			Payer:       "Juanma",
			Transaction: ledger.Transaction{Amount: decimal.NewFromInt(85000), Description: "Exito"},
		})
		if err == nil {
			done <- out
		}
	}()

	var ref chat.MessageRef
	require.Eventually(t, func() bool {
		f.messenger.mu.Lock()
		defer f.messenger.mu.Unlock()
		if len(f.messenger.sent) == 0 {
			return false
		}
		ref = f.messenger.sent[0]
		_, err := f.dialogs.Registry().HandleFor(ref.MessageID)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	f.bot.routeButton(context.Background(), ref, dialog.Token(dialog.Validate{Accept: false}))

	select {
	case out := <-done:
		assert.True(t, out.Declined())
	case <-time.After(time.Second):
		t.Fatal("dialog did not resolve")
	}
}

func TestRouteButtonUnknownMessageShowsExpiry(t *testing.T) {
	f := newFixture()
	ref := chat.MessageRef{ChannelID: "111", MessageID: "old"}
	f.bot.routeButton(context.Background(), ref, dialog.Token(dialog.Validate{Accept: true}))
	assert.NotEmpty(t, f.messenger.text("old"))
}

func TestRouteTextAmbiguousSendsNotice(t *testing.T) {
	f := newFixture()
	for i := 0; i < 2; i++ {
		openWaiting(t, f.dialogs.Registry(), "111")
	}

	f.bot.routeText(context.Background(), "111", "", "50")

	require.Len(t, f.messenger.sent, 1)
	assert.Equal(t, textAmbiguous, f.messenger.text(f.messenger.sent[0].MessageID))
}

func TestRouteTextIgnoresOtherChannels(t *testing.T) {
	f := newFixture()
	openWaiting(t, f.dialogs.Registry(), "222")
	f.bot.routeText(context.Background(), "222", "", "50")
	assert.Empty(t, f.messenger.sent)
}

func TestRecurringEditThroughEvents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	items := []recurring.Item{{Name: "Arriendo", Amount: decimal.NewFromInt(1500000), Category: "🏠 Casa - Arriendo", Scope: ledger.ScopeFamiliar}}
	require.NoError(t, f.recurring.Start(ctx, "Juanma", "111", items))
	ref := f.messenger.sent[0]

	f.bot.routeButton(ctx, ref, recurring.Token(recurring.ActionEdit))
	assert.True(t, f.recurring.Waiting("Juanma"))

	f.bot.routeText(ctx, "111", "", "1.600.000")

	require.Len(t, f.ledger.amounts, 1)
	assert.True(t, f.ledger.amounts[0].Equal(decimal.NewFromInt(1600000)))
	assert.False(t, f.recurring.Waiting("Juanma"))
}

func TestRecurringButtonWithoutSession(t *testing.T) {
	f := newFixture()
	ref := chat.MessageRef{ChannelID: "111", MessageID: "r9"}
	f.bot.routeButton(context.Background(), ref, recurring.Token(recurring.ActionAccept))
	assert.Equal(t, textReviewExpired, f.messenger.text("r9"))
}
