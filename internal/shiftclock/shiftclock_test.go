package shiftclock

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return parsed
}

func TestWindowAtBeforeOpeningHasNoShift(t *testing.T) {
	// 2025-07-04T10:59:00Z is 17:59 local, one minute before opening.
	_, ok := WindowAt(mustParse(t, "2025-07-04T10:59:00Z"))
	if ok {
		t.Fatalf("expected no open shift at 17:59 local")
	}
}

func TestWindowAtOpeningMinute(t *testing.T) {
	// 2025-07-04T11:00:00Z is exactly 18:00 local.
	w, ok := WindowAt(mustParse(t, "2025-07-04T11:00:00Z"))
	if !ok {
		t.Fatalf("expected open shift at 18:00 local")
	}
	if w.Key() != "2025-07-04" {
		t.Fatalf("expected key 2025-07-04, got %s", w.Key())
	}
	if !w.Start.Equal(mustParse(t, "2025-07-04T11:00:00Z")) {
		t.Fatalf("unexpected window start %s", w.Start)
	}
	if !w.End.Equal(mustParse(t, "2025-07-04T20:00:00Z")) {
		t.Fatalf("unexpected window end %s", w.End)
	}
}

func TestWindowAtLateNightBelongsToPriorDate(t *testing.T) {
	// 2025-07-04T19:59:00Z is 02:59 local on July 5, still July 4's shift.
	w, ok := WindowAt(mustParse(t, "2025-07-04T19:59:00Z"))
	if !ok {
		t.Fatalf("expected open shift at 02:59 local")
	}
	if w.Key() != "2025-07-04" {
		t.Fatalf("expected key 2025-07-04, got %s", w.Key())
	}
}

func TestWindowAtClosingMinuteHasNoShift(t *testing.T) {
	// 2025-07-04T20:00:00Z is exactly 03:00 local on July 5.
	_, ok := WindowAt(mustParse(t, "2025-07-04T20:00:00Z"))
	if ok {
		t.Fatalf("expected no open shift at 03:00 local")
	}
}

func TestWindowContainsIsHalfOpen(t *testing.T) {
	w, _ := WindowAt(mustParse(t, "2025-07-04T11:00:00Z"))
	if !w.Contains(w.Start) {
		t.Fatalf("window should contain its start instant")
	}
	if w.Contains(w.End) {
		t.Fatalf("window should not contain its end instant")
	}
	if !w.Contains(mustParse(t, "2025-07-04T19:59:59Z")) {
		t.Fatalf("window should contain 02:59:59 local next day")
	}
}

func TestWindowAtMonthRollover(t *testing.T) {
	// 2025-07-31T19:30:00Z is 02:30 local on Aug 1; shift key is July 31.
	w, ok := WindowAt(mustParse(t, "2025-07-31T19:30:00Z"))
	if !ok {
		t.Fatalf("expected open shift")
	}
	if w.Key() != "2025-07-31" {
		t.Fatalf("expected key 2025-07-31, got %s", w.Key())
	}
}

func TestWindowAtYearRollover(t *testing.T) {
	// 2025-12-31T18:30:00Z is 01:30 local on Jan 1 2026.
	w, ok := WindowAt(mustParse(t, "2025-12-31T18:30:00Z"))
	if !ok {
		t.Fatalf("expected open shift")
	}
	if w.Key() != "2025-12-31" {
		t.Fatalf("expected key 2025-12-31, got %s", w.Key())
	}
}

func TestLastCompletedDuringGap(t *testing.T) {
	// 12:00 local on July 4: last completed shift started July 3 18:00.
	w := LastCompleted(mustParse(t, "2025-07-04T05:00:00Z"))
	if w.Key() != "2025-07-03" {
		t.Fatalf("expected key 2025-07-03, got %s", w.Key())
	}
	if !w.End.Equal(mustParse(t, "2025-07-03T20:00:00Z")) {
		t.Fatalf("unexpected window end %s", w.End)
	}
}

func TestLastCompletedDuringOpenShift(t *testing.T) {
	// 22:00 local on July 4: the current shift is open, so the last
	// completed one is July 3's.
	w := LastCompleted(mustParse(t, "2025-07-04T15:00:00Z"))
	if w.Key() != "2025-07-03" {
		t.Fatalf("expected key 2025-07-03, got %s", w.Key())
	}
}

func TestWindowForDate(t *testing.T) {
	w, err := WindowForDate("2025-07-04")
	if err != nil {
		t.Fatalf("window for date failed: %v", err)
	}
	if !w.Start.Equal(mustParse(t, "2025-07-04T11:00:00Z")) {
		t.Fatalf("unexpected start %s", w.Start)
	}
	if !w.End.Equal(mustParse(t, "2025-07-04T20:00:00Z")) {
		t.Fatalf("unexpected end %s", w.End)
	}

	if _, err := WindowForDate("04/07/2025"); err == nil {
		t.Fatalf("expected malformed date to be rejected")
	}
}

func TestNextClose(t *testing.T) {
	// 22:00 local July 4: next close is 03:00 local July 5 = 20:00Z July 4.
	got := NextClose(mustParse(t, "2025-07-04T15:00:00Z"))
	if !got.Equal(mustParse(t, "2025-07-04T20:00:00Z")) {
		t.Fatalf("unexpected next close %s", got)
	}

	// 01:00 local July 5: next close is later the same local morning.
	got = NextClose(mustParse(t, "2025-07-04T18:00:00Z"))
	if !got.Equal(mustParse(t, "2025-07-04T20:00:00Z")) {
		t.Fatalf("unexpected next close %s", got)
	}

	// 03:00 local exactly: the next close is tomorrow's.
	got = NextClose(mustParse(t, "2025-07-04T20:00:00Z"))
	if !got.Equal(mustParse(t, "2025-07-05T20:00:00Z")) {
		t.Fatalf("unexpected next close %s", got)
	}
}
