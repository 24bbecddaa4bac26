// Package recurring runs the per-operator review of recurring expenses.
package recurring

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/susu3304/gastobot/internal/ledger"
)

// Item is a recurring expense template. Sessions work on copies.
type Item struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Scope    ledger.Scope    `json:"scope"`
	Owner    string          `json:"owner"`
}

type Status int

const (
	StatusReview Status = iota
	StatusWaitingEditAmount
)

type Action string

const (
	ActionAccept Action = "ACCEPT"
	ActionEdit   Action = "EDIT"
	ActionSkip   Action = "SKIP"
	ActionCancel Action = "CANCEL"
)

// TokenStep prefixes recurring review button tokens.
const TokenStep = "FIJO"

func Token(a Action) string { return TokenStep + "|" + string(a) }

// ParseToken decodes "FIJO|ACTION".
func ParseToken(token string) (Action, bool) {
	step, value, ok := strings.Cut(token, "|")
	if !ok || step != TokenStep {
		return "", false
	}
	switch a := Action(value); a {
	case ActionAccept, ActionEdit, ActionSkip, ActionCancel:
		return a, true
	}
	return "", false
}

// Progress reports where a session stands after an action.
type Progress struct {
	Index     int
	Saved     int
	Total     int
	Done      bool
	Cancelled bool
}
