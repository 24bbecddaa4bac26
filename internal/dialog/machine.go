package dialog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/money"
	"github.com/susu3304/gastobot/internal/taxonomy"
)

// ErrUnexpectedInput is returned for inputs that do not belong to the current status.
// The state is left untouched.
var ErrUnexpectedInput = errors.New("input not expected in current state")

type ReplyOutcome int

const (
	OutcomePending ReplyOutcome = iota
	OutcomeSaved
	OutcomeCancelled
)

// Reply is what the dialog shows after a transition.
type Reply struct {
	Text     string
	Keyboard chat.Keyboard
	Outcome  ReplyOutcome
	Splits   []ledger.Split
}

// Machine is the classification transition function. It holds no per-dialog data.
type Machine struct {
	tax *taxonomy.Taxonomy
}

func NewMachine(tax *taxonomy.Taxonomy) *Machine {
	return &Machine{tax: tax}
}

// Begin moves a fresh dialog from Init to WaitingValidate.
func (m *Machine) Begin(st *State) Reply {
	st.Remaining = st.Total
	st.Status = StatusWaitingValidate
	return m.render(st, "")
}

// Render returns the prompt for the current status. It reports false when the
// dialog has no prompt to show (not started, saving or finished).
func (m *Machine) Render(st *State) (Reply, bool) {
	switch st.Status {
	case StatusInit, StatusProcessing, StatusTerminal:
		return Reply{}, false
	}
	return m.render(st, ""), true
}

// Apply performs one transition.
func (m *Machine) Apply(st *State, in Input) (Reply, error) {
	if st.Status == StatusTerminal || st.Status == StatusProcessing || st.Status == StatusInit {
		return Reply{}, ErrUnexpectedInput
	}
	if c, ok := in.(Confirm); ok && c.Action == ConfirmCancel {
		return m.cancel(st, textCancelled), nil
	}

	switch in := in.(type) {
	case Validate:
		if st.Status != StatusWaitingValidate {
			break
		}
		if !in.Accept {
			return m.cancel(st, textDeclined), nil
		}
		st.Status = StatusWaitingMultiplicity
		return m.render(st, ""), nil

	case ChooseMultiplicity:
		if st.Status != StatusWaitingMultiplicity {
			break
		}
		st.Multiple = in.Multiple
		st.Splits = nil
		st.Remaining = st.Total
		if in.Multiple {
			st.Status = StatusWaitingAmount
		} else {
			st.Status = StatusWaitingScope
		}
		return m.render(st, ""), nil

	case EnterAmount:
		if st.Status != StatusWaitingAmount {
			break
		}
		amount, err := money.ParseAmount(in.Raw)
		if err != nil {
			return m.render(st, fmt.Sprintf(noticeInvalidAmount, in.Raw)), nil
		}
		st.PendingAmount = amount
		st.Status = StatusWaitingScope
		return m.render(st, ""), nil

	case UseRemaining:
		if st.Status != StatusWaitingAmount || len(st.Splits) == 0 || !st.Remaining.IsPositive() {
			break
		}
		st.PendingAmount = st.Remaining
		st.Status = StatusWaitingScope
		return m.render(st, ""), nil

	case ChooseScope:
		if st.Status != StatusWaitingScope || len(m.tax.Categories(in.Scope)) == 0 {
			break
		}
		st.Scope = in.Scope
		st.Status = StatusWaitingCategory
		return m.render(st, ""), nil

	case ChooseCategory:
		if st.Status != StatusWaitingCategory {
			break
		}
		cat, ok := m.tax.Category(st.Scope, in.Name)
		if !ok {
			break
		}
		st.PendingCategory = cat.Name
		if len(cat.Subcategories) == 0 {
			return m.finalize(st, ledger.KindExpense), nil
		}
		st.Status = StatusWaitingSubcategory
		return m.render(st, ""), nil

	case ChooseSubcategory:
		if st.Status != StatusWaitingSubcategory || !m.tax.HasSubcategory(st.Scope, st.PendingCategory, in.Name) {
			break
		}
		st.PendingSubcategory = in.Name
		if taxonomy.IsPocket(in.Name) {
			st.Status = StatusWaitingAction
			return m.render(st, ""), nil
		}
		return m.finalize(st, ledger.KindExpense), nil

	case ChooseKind:
		if st.Status != StatusWaitingAction {
			break
		}
		return m.finalize(st, in.Kind), nil

	case Confirm:
		if st.Status != StatusConfirming {
			break
		}
		switch in.Action {
		case ConfirmSave:
			st.Status = StatusProcessing
			return Reply{
				Text:    m.summary(st) + "\n\n" + textSaving,
				Outcome: OutcomeSaved,
				Splits:  append([]ledger.Split(nil), st.Splits...),
			}, nil
		case ConfirmRestart:
			m.restart(st)
			return m.render(st, ""), nil
		}
	}
	return Reply{}, fmt.Errorf("%w: %T in %s", ErrUnexpectedInput, in, st.Status)
}

// finalize builds the split under classification and applies the reconciliation policy.
func (m *Machine) finalize(st *State, kind ledger.Kind) Reply {
	amount := st.Total
	if st.Multiple {
		amount = st.PendingAmount
	}
	split := ledger.Split{
		Category:    st.PendingCategory,
		Subcategory: taxonomy.DisplayName(st.PendingSubcategory),
		Scope:       st.Scope,
		Amount:      amount,
		Payer:       st.Payer,
		Kind:        kind,
	}
	st.clearPending()

	if !st.Multiple {
		st.Splits = []ledger.Split{split}
		st.Remaining = decimal.Zero
		st.Status = StatusConfirming
		return m.render(st, "")
	}

	splits, remaining, verdict := Reconcile(st.Total, append(st.Splits, split), Tolerance)
	st.Splits = splits
	st.Remaining = remaining
	switch verdict {
	case VerdictOverAssigned:
		st.Status = StatusWaitingAmount
		return m.render(st, fmt.Sprintf(noticeOverAssigned, money.Format(amount), money.Format(remaining)))
	case VerdictBalanced:
		st.Status = StatusConfirming
	default:
		st.Status = StatusWaitingAmount
	}
	return m.render(st, "")
}

func (m *Machine) restart(st *State) {
	st.Splits = nil
	st.Remaining = st.Total
	st.Multiple = false
	st.Scope = ""
	st.clearPending()
	st.Status = StatusWaitingMultiplicity
}

func (m *Machine) cancel(st *State, text string) Reply {
	st.Splits = nil
	st.clearPending()
	st.Status = StatusTerminal
	return Reply{Text: m.header(st) + "\n\n" + text, Outcome: OutcomeCancelled}
}
