package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/money"
)

var savedc = color.New(color.BgGreen, color.FgBlack)

type Entry struct {
	Tx    ledger.Transaction
	Split ledger.Split
}

// Ledger keeps entries in memory and echoes each write.
type Ledger struct {
	mu      sync.Mutex
	out     io.Writer
	entries []Entry
}

func NewLedger(out io.Writer) *Ledger {
	return &Ledger{out: out}
}

func (l *Ledger) AppendEntry(_ context.Context, tx ledger.Transaction, s ledger.Split) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Tx: tx, Split: s})
	savedc.Fprintf(l.out, " SAVED ")
	fmt.Fprintf(l.out, " %s | %s | %s | %s | %s\n", s.Payer, s.Scope, s.Kind, s.Label(), money.Format(s.Amount))
	return nil
}

// AccumulatedTotal sums matching entries. The in-memory ledger has no billing cycle.
func (l *Ledger) AccumulatedTotal(_ context.Context, q ledger.TotalQuery) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, e := range l.entries {
		s := e.Split
		if s.Category != q.Category || s.Scope != q.Scope || s.Kind != q.Kind {
			continue
		}
		if q.Subcategory != "" && !strings.EqualFold(s.Subcategory, q.Subcategory) {
			continue
		}
		if q.Payer != "" && s.Payer != q.Payer {
			continue
		}
		total = total.Add(s.Amount)
	}
	return total, nil
}

func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
