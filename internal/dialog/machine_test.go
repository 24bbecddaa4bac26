package dialog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/taxonomy"
)

func newTestState(total int64) *State {
	return &State{
		Payer: "Juanma",
		Tx:    ledger.Transaction{Amount: decimal.NewFromInt(total), Description: "Compra Exito", Timestamp: "11/12/2025 15:51"},
		Total: decimal.NewFromInt(total),
	}
}

func drive(t *testing.T, m *Machine, st *State, inputs ...Input) Reply {
	t.Helper()
	var last Reply
	for _, in := range inputs {
		r, err := m.Apply(st, in)
		require.NoError(t, err, "input %#v in %s", in, st.Status)
		last = r
	}
	return last
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSingleCategoryFlow(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := newTestState(85000)

	r := m.Begin(st)
	assert.Equal(t, StatusWaitingValidate, st.Status)
	assert.Contains(t, r.Text, "$85,000")
	require.Len(t, r.Keyboard, 1)
	assert.Equal(t, "VALID|Yes", r.Keyboard[0][0].Token)

	drive(t, m, st,
		Validate{Accept: true},
		ChooseMultiplicity{Multiple: false},
		ChooseScope{Scope: ledger.ScopeFamiliar},
		ChooseCategory{Name: "🏠 Casa"},
	)
	assert.Equal(t, StatusWaitingSubcategory, st.Status)

	r = drive(t, m, st, ChooseSubcategory{Name: "Mercado"})
	assert.Equal(t, StatusConfirming, st.Status)
	assert.Contains(t, r.Text, "🏠 Casa - Mercado")
	require.Len(t, st.Splits, 1)
	assert.Equal(t, ledger.Split{
		Category:    "🏠 Casa",
		Subcategory: "Mercado",
		Scope:       ledger.ScopeFamiliar,
		Amount:      decimal.NewFromInt(85000),
		Payer:       "Juanma",
		Kind:        ledger.KindExpense,
	}, st.Splits[0])

	r = drive(t, m, st, Confirm{Action: ConfirmSave})
	assert.Equal(t, OutcomeSaved, r.Outcome)
	assert.Equal(t, StatusProcessing, st.Status)
	assert.Len(t, r.Splits, 1)
	assert.Empty(t, r.Keyboard)
}

func TestPocketSubcategoryAsksKind(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := newTestState(120000)
	m.Begin(st)

	drive(t, m, st,
		Validate{Accept: true},
		ChooseMultiplicity{Multiple: false},
		ChooseScope{Scope: ledger.ScopeFamiliar},
		ChooseCategory{Name: "🏠 Casa"},
		ChooseSubcategory{Name: "[Bolsillo] Seguro Gatos"},
	)
	assert.Equal(t, StatusWaitingAction, st.Status)

	drive(t, m, st, ChooseKind{Kind: ledger.KindSavings})
	require.Len(t, st.Splits, 1)
	assert.Equal(t, "Seguro Gatos", st.Splits[0].Subcategory)
	assert.Equal(t, ledger.KindSavings, st.Splits[0].Kind)
	assert.Equal(t, StatusConfirming, st.Status)
}

func TestCategoryWithoutSubcategoriesDefaultsToExpense(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := newTestState(30000)
	m.Begin(st)

	drive(t, m, st,
		Validate{Accept: true},
		ChooseMultiplicity{Multiple: false},
		ChooseScope{Scope: ledger.ScopePersonal},
		ChooseCategory{Name: "💸 Deudas"},
	)
	assert.Equal(t, StatusConfirming, st.Status)
	require.Len(t, st.Splits, 1)
	assert.Equal(t, "💸 Deudas", st.Splits[0].Label())
	assert.Equal(t, ledger.KindExpense, st.Splits[0].Kind)
}

// enterSplit classifies one split of a multiple dialog as a personal debt.
func enterSplit(t *testing.T, m *Machine, st *State, amount Input) Reply {
	t.Helper()
	return drive(t, m, st, amount, ChooseScope{Scope: ledger.ScopePersonal}, ChooseCategory{Name: "💸 Deudas"})
}

func startMultiple(t *testing.T, m *Machine, total int64) *State {
	t.Helper()
	st := newTestState(total)
	m.Begin(st)
	drive(t, m, st, Validate{Accept: true}, ChooseMultiplicity{Multiple: true})
	require.Equal(t, StatusWaitingAmount, st.Status)
	require.True(t, st.Remaining.Equal(st.Total))
	return st
}

func TestMultipleLastSplitAbsorbsResidue(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := startMultiple(t, m, 100000)

	enterSplit(t, m, st, EnterAmount{Raw: "60000"})
	assert.Equal(t, StatusWaitingAmount, st.Status)
	assert.True(t, st.Remaining.Equal(dec("40000")))

	enterSplit(t, m, st, EnterAmount{Raw: "39999.5"})
	assert.Equal(t, StatusConfirming, st.Status)
	require.Len(t, st.Splits, 2)
	assert.True(t, st.Splits[0].Amount.Equal(dec("60000")), "first split keeps typed amount")
	assert.True(t, st.Splits[1].Amount.Equal(dec("40000")), "got %s", st.Splits[1].Amount)
	assert.True(t, st.Remaining.IsZero())
}

func TestMultipleUseRemaining(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := startMultiple(t, m, 100000)

	_, err := m.Apply(st, UseRemaining{})
	assert.ErrorIs(t, err, ErrUnexpectedInput, "no remaining shortcut before the first split")

	r := enterSplit(t, m, st, EnterAmount{Raw: "60k"})
	assert.Equal(t, "AMOUNT|REST", r.Keyboard[0][0].Token)

	enterSplit(t, m, st, UseRemaining{})
	assert.Equal(t, StatusConfirming, st.Status)
	assert.True(t, st.Splits[1].Amount.Equal(dec("40000")))
}

func TestMultipleOverAssignmentRollsBack(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := startMultiple(t, m, 100000)

	enterSplit(t, m, st, EnterAmount{Raw: "60000"})
	before := st.Remaining

	r := enterSplit(t, m, st, EnterAmount{Raw: "50000"})
	assert.Equal(t, StatusWaitingAmount, st.Status)
	assert.Len(t, st.Splits, 1)
	assert.True(t, st.Remaining.Equal(before))
	assert.Contains(t, r.Text, "supera el total")
}

func TestOverAssignmentOnFirstSplit(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := startMultiple(t, m, 100000)

	enterSplit(t, m, st, EnterAmount{Raw: "100002"})
	assert.Equal(t, StatusWaitingAmount, st.Status)
	assert.Empty(t, st.Splits)
	assert.True(t, st.Remaining.Equal(dec("100000")))
}

func TestInvalidAmountKeepsState(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := startMultiple(t, m, 100000)
	before := *st.clone()

	r := drive(t, m, st, EnterAmount{Raw: "abc"})
	assert.Contains(t, r.Text, "no es un monto válido")
	assert.Equal(t, before.Status, st.Status)
	assert.True(t, before.Remaining.Equal(st.Remaining))
	assert.Empty(t, st.Splits)
}

func TestStrayAmountIgnoredOutsideWaitingAmount(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := newTestState(5000)
	m.Begin(st)

	_, err := m.Apply(st, EnterAmount{Raw: "5000"})
	assert.ErrorIs(t, err, ErrUnexpectedInput)
	assert.Equal(t, StatusWaitingValidate, st.Status)
}

func TestStaleAndUnknownInputsRejected(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := newTestState(5000)
	m.Begin(st)
	drive(t, m, st, Validate{Accept: true}, ChooseMultiplicity{Multiple: false}, ChooseScope{Scope: ledger.ScopeFamiliar})

	_, err := m.Apply(st, Validate{Accept: true})
	assert.ErrorIs(t, err, ErrUnexpectedInput)

	_, err = m.Apply(st, ChooseCategory{Name: "💸 Deudas"})
	assert.ErrorIs(t, err, ErrUnexpectedInput, "personal category under familiar scope")
	assert.Equal(t, StatusWaitingCategory, st.Status)

	drive(t, m, st, ChooseCategory{Name: "🏠 Casa"})
	_, err = m.Apply(st, ChooseSubcategory{Name: "Gasolina"})
	assert.ErrorIs(t, err, ErrUnexpectedInput)
}

func TestRestartIsIdempotent(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	st := startMultiple(t, m, 100000)

	for i := 0; i < 3; i++ {
		if i > 0 {
			drive(t, m, st, ChooseMultiplicity{Multiple: true})
		}
		enterSplit(t, m, st, EnterAmount{Raw: "70000"})
		enterSplit(t, m, st, EnterAmount{Raw: "30000"})
		require.Equal(t, StatusConfirming, st.Status)

		drive(t, m, st, Confirm{Action: ConfirmRestart})
		assert.Empty(t, st.Splits)
		assert.True(t, st.Remaining.Equal(st.Total))
		assert.Equal(t, StatusWaitingMultiplicity, st.Status)
	}
}

func TestCancellationAlwaysEmpty(t *testing.T) {
	m := NewMachine(taxonomy.Default())

	st := newTestState(1000)
	m.Begin(st)
	r := drive(t, m, st, Validate{Accept: false})
	assert.Equal(t, OutcomeCancelled, r.Outcome)
	assert.Empty(t, r.Splits)
	assert.Equal(t, StatusTerminal, st.Status)

	st = startMultiple(t, m, 100000)
	enterSplit(t, m, st, EnterAmount{Raw: "60000"})
	require.Len(t, st.Splits, 1)
	r = drive(t, m, st, Confirm{Action: ConfirmCancel})
	assert.Equal(t, OutcomeCancelled, r.Outcome)
	assert.Empty(t, r.Splits)
	assert.Empty(t, st.Splits)

	_, err := m.Apply(st, Validate{Accept: true})
	assert.ErrorIs(t, err, ErrUnexpectedInput, "terminal dialogs accept nothing")
}

func TestSavedSplitsReconcileWithinTolerance(t *testing.T) {
	m := NewMachine(taxonomy.Default())
	for _, amounts := range [][]string{
		{"33333", "33333", "33333.4"},
		{"50000", "50001"},
		{"1", "99998.2"},
	} {
		st := startMultiple(t, m, 100000)
		for _, a := range amounts {
			enterSplit(t, m, st, EnterAmount{Raw: a})
		}
		require.Equal(t, StatusConfirming, st.Status, amounts)
		r := drive(t, m, st, Confirm{Action: ConfirmSave})

		sum := decimal.Zero
		for _, s := range r.Splits {
			sum = sum.Add(s.Amount)
		}
		assert.True(t, st.Total.Sub(sum).Abs().LessThanOrEqual(Tolerance), "sum %s for %v", sum, amounts)
	}
}
