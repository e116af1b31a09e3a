package reconcile

import (
	"testing"

	"shiftbook/backend/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

func TestAnalyzePendingWithoutActualCash(t *testing.T) {
	shift := domain.Shift{BusinessDate: "2025-07-04", OpeningCents: 100000}
	agg := domain.ShiftAggregate{CashSalesCents: 250000}

	analysis := Analyze(shift, agg)

	if !analysis.Pending {
		t.Fatalf("expected pending analysis")
	}
	if analysis.Balanced {
		t.Fatalf("pending analysis must not claim balance")
	}
	if analysis.ActualCents != nil {
		t.Fatalf("pending analysis must not carry actual cents")
	}
	if analysis.ExpectedCents != 350000 {
		t.Fatalf("expected cents = %d, want 350000", analysis.ExpectedCents)
	}
}

func TestAnalyzeToleranceBoundary(t *testing.T) {
	shift := domain.Shift{
		BusinessDate: "2025-07-04",
		OpeningCents: 100000,
		PayoutsCents: 5000,
	}
	agg := domain.ShiftAggregate{CashSalesCents: 55000}
	// expected = 100000 + 55000 - 5000 = 150000

	cases := []struct {
		name     string
		actual   int64
		balanced bool
	}{
		{"exact", 150000, true},
		{"short at tolerance", 150000 - ToleranceCents, true},
		{"over at tolerance", 150000 + ToleranceCents, true},
		{"short past tolerance", 150000 - ToleranceCents - 1, false},
		{"over past tolerance", 150000 + ToleranceCents + 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := shift
			s.ActualCents = int64Ptr(tc.actual)
			analysis := Analyze(s, agg)
			if analysis.Pending {
				t.Fatalf("unexpected pending")
			}
			if analysis.Balanced != tc.balanced {
				t.Fatalf("actual %d: balanced = %v, want %v (diff %d)",
					tc.actual, analysis.Balanced, tc.balanced, analysis.DifferenceCents)
			}
			if analysis.DifferenceCents != tc.actual-150000 {
				t.Fatalf("difference = %d, want %d", analysis.DifferenceCents, tc.actual-150000)
			}
		})
	}
}

func TestAnalyzeCarriesUpstreamExpectation(t *testing.T) {
	shift := domain.Shift{
		BusinessDate:  "2025-07-04",
		OpeningCents:  100000,
		ExpectedCents: 149500,
		ActualCents:   int64Ptr(150000),
	}
	agg := domain.ShiftAggregate{CashSalesCents: 50000}

	analysis := Analyze(shift, agg)

	if analysis.ExpectedCents != 150000 {
		t.Fatalf("local expectation = %d, want 150000", analysis.ExpectedCents)
	}
	if analysis.UpstreamExpectedCents != 149500 {
		t.Fatalf("upstream expectation = %d, want 149500", analysis.UpstreamExpectedCents)
	}
	if !analysis.Balanced {
		t.Fatalf("verdict must come from the local expectation")
	}
}

func TestAnalyzeNegativeCashSales(t *testing.T) {
	// A shift dominated by cash refunds can net below the opening float.
	shift := domain.Shift{
		BusinessDate: "2025-07-04",
		OpeningCents: 100000,
		ActualCents:  int64Ptr(70000),
	}
	agg := domain.ShiftAggregate{CashSalesCents: -30000}

	analysis := Analyze(shift, agg)

	if analysis.ExpectedCents != 70000 {
		t.Fatalf("expected = %d, want 70000", analysis.ExpectedCents)
	}
	if !analysis.Balanced || analysis.DifferenceCents != 0 {
		t.Fatalf("expected exact balance, got %+v", analysis)
	}
}
