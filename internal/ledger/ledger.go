package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

type Scope string

const (
	ScopeFamiliar Scope = "Familiar"
	ScopePersonal Scope = "Personal"
)

func ParseScope(s string) (Scope, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "familiar":
		return ScopeFamiliar, true
	case "personal":
		return ScopePersonal, true
	}
	return "", false
}

// Kind is the movement type written to the ledger.
type Kind string

const (
	KindExpense Kind = "Gasto"
	KindIncome  Kind = "Ingreso"
	KindSavings Kind = "Ahorro"
)

var Kinds = []Kind{KindIncome, KindExpense, KindSavings}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, true
		}
	}
	return "", false
}

// Transaction is a detected movement handed over by the collector.
type Transaction struct {
	SourceID    string
	Amount      decimal.Decimal
	Description string
	Timestamp   string
}

// WithAmount returns a copy carrying a different amount.
func (t Transaction) WithAmount(amount decimal.Decimal) Transaction {
	t.Amount = amount
	return t
}

// Split is one categorized portion of a transaction.
type Split struct {
	Category    string
	Subcategory string
	Scope       Scope
	Amount      decimal.Decimal
	Payer       string
	Kind        Kind
}

// Label renders "Category - Subcategory", or just the category.
func (s Split) Label() string {
	if s.Subcategory == "" {
		return s.Category
	}
	return s.Category + " - " + s.Subcategory
}

// SplitLabel parses a "Category - Subcategory" label.
func SplitLabel(label string) (category, subcategory string) {
	main, sub, ok := strings.Cut(label, " - ")
	if !ok {
		return strings.TrimSpace(label), ""
	}
	return strings.TrimSpace(main), strings.TrimSpace(sub)
}

// TotalQuery selects ledger entries for an accumulated total.
// Payer is only honoured for personal scope.
type TotalQuery struct {
	Category    string
	Subcategory string
	Scope       Scope
	Kind        Kind
	Payer       string
}

// ForSplit builds the accumulated-total query matching a saved split.
func ForSplit(s Split) TotalQuery {
	q := TotalQuery{
		Category:    s.Category,
		Subcategory: s.Subcategory,
		Scope:       s.Scope,
		Kind:        s.Kind,
	}
	if s.Scope == ScopePersonal {
		q.Payer = s.Payer
	}
	return q
}

// Ledger is the append-only store of categorized entries.
type Ledger interface {
	AppendEntry(ctx context.Context, tx Transaction, split Split) error
	AccumulatedTotal(ctx context.Context, q TotalQuery) (decimal.Decimal, error)
}
