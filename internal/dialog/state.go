package dialog

import (
	"github.com/shopspring/decimal"

	"github.com/susu3304/gastobot/internal/ledger"
)

// Handle identifies one open dialog.
type Handle string

type Status int

const (
	StatusInit Status = iota
	StatusWaitingValidate
	StatusWaitingMultiplicity
	StatusWaitingScope
	StatusWaitingCategory
	StatusWaitingSubcategory
	StatusWaitingAction
	StatusWaitingAmount
	StatusProcessing
	StatusConfirming
	StatusTerminal
)

var statusNames = map[Status]string{
	StatusInit:                "init",
	StatusWaitingValidate:     "waiting_validate",
	StatusWaitingMultiplicity: "waiting_multiplicity",
	StatusWaitingScope:        "waiting_scope",
	StatusWaitingCategory:     "waiting_category",
	StatusWaitingSubcategory:  "waiting_subcategory",
	StatusWaitingAction:       "waiting_action",
	StatusWaitingAmount:       "waiting_amount",
	StatusProcessing:          "processing",
	StatusConfirming:          "confirming",
	StatusTerminal:            "terminal",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// State is the per-dialog data. Only the Machine mutates it.
type State struct {
	Handle    Handle
	Recipient string
	Payer     string
	Tx        ledger.Transaction

	Total     decimal.Decimal
	Remaining decimal.Decimal
	Multiple  bool
	Scope     ledger.Scope
	Splits    []ledger.Split

	// Split under classification.
	PendingAmount      decimal.Decimal
	PendingCategory    string
	PendingSubcategory string
	PendingKind        ledger.Kind

	Status Status
}

func (s *State) clone() *State {
	c := *s
	c.Splits = append([]ledger.Split(nil), s.Splits...)
	return &c
}

func (s *State) clearPending() {
	s.PendingAmount = decimal.Zero
	s.PendingCategory = ""
	s.PendingSubcategory = ""
	s.PendingKind = ""
}
