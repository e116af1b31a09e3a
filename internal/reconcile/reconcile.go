// Package reconcile compares expected cash against counted cash for a
// closed shift.
package reconcile

import (
	"shiftbook/backend/internal/domain"
)

// ToleranceCents is the allowed absolute cash difference before a shift
// is flagged as out of balance. Small rounding and change-making drift
// inside this band is normal drawer noise.
const ToleranceCents = 2000

// ExpectedCents computes the cash the drawer should hold at close:
// the opening float plus net cash sales minus payouts.
func ExpectedCents(shift domain.Shift, agg domain.ShiftAggregate) int64 {
	return shift.OpeningCents + agg.CashSalesCents - shift.PayoutsCents
}

// Analyze builds the balance report for one shift. When no counted cash
// has been recorded yet the result is Pending and carries no verdict.
// The upstream-reported expectation is included alongside the locally
// derived one so a disagreement between the two is visible, but the
// local derivation is authoritative for the verdict.
func Analyze(shift domain.Shift, agg domain.ShiftAggregate) domain.BalanceAnalysis {
	expected := ExpectedCents(shift, agg)
	analysis := domain.BalanceAnalysis{
		BusinessDate:          shift.BusinessDate,
		ExpectedCents:         expected,
		UpstreamExpectedCents: shift.ExpectedCents,
		ToleranceCents:        ToleranceCents,
	}

	if shift.ActualCents == nil {
		analysis.Pending = true
		return analysis
	}

	actual := *shift.ActualCents
	analysis.ActualCents = &actual
	analysis.DifferenceCents = actual - expected
	diff := analysis.DifferenceCents
	if diff < 0 {
		diff = -diff
	}
	analysis.Balanced = diff <= ToleranceCents
	return analysis
}
