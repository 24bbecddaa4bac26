package dialog

import (
	"github.com/shopspring/decimal"

	"github.com/susu3304/gastobot/internal/ledger"
)

// Tolerance is the rounding slack accepted when splits are reconciled against the total.
var Tolerance = decimal.NewFromInt(1)

type Verdict int

const (
	VerdictNeedMore Verdict = iota
	VerdictOverAssigned
	VerdictBalanced
)

// Remaining is total minus the sum of split amounts.
func Remaining(total decimal.Decimal, splits []ledger.Split) decimal.Decimal {
	rem := total
	for _, s := range splits {
		rem = rem.Sub(s.Amount)
	}
	return rem
}

// Reconcile applies the split policy after a split has been appended.
// Over-assignment drops the last split. A residue within tol is absorbed by the last split,
// so every earlier split keeps exactly the amount the operator typed.
func Reconcile(total decimal.Decimal, splits []ledger.Split, tol decimal.Decimal) ([]ledger.Split, decimal.Decimal, Verdict) {
	rem := Remaining(total, splits)
	if len(splits) == 0 || rem.GreaterThan(tol) {
		return splits, rem, VerdictNeedMore
	}
	if rem.LessThan(tol.Neg()) {
		kept := splits[:len(splits)-1:len(splits)-1]
		return kept, Remaining(total, kept), VerdictOverAssigned
	}
	out := append([]ledger.Split(nil), splits...)
	last := &out[len(out)-1]
	last.Amount = last.Amount.Add(rem)
	return out, decimal.Zero, VerdictBalanced
}
