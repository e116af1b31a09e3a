// Package shiftclock maps wall-clock instants to business-shift windows.
//
// The business runs 18:00-03:00 in a fixed UTC+7 zone with no daylight
// saving. All math here relies on that fixed offset; porting to a region
// with DST requires replacing BusinessZone with a named time.Location and
// revisiting every boundary computation.
package shiftclock

import (
	"fmt"
	"time"
)

// BusinessZone is the fixed business timezone (Indochina Time, UTC+7).
var BusinessZone = time.FixedZone("ICT", 7*3600)

const (
	openHour  = 18
	closeHour = 3
	// DateKeyLayout formats a window's business-date grouping key.
	DateKeyLayout = "2006-01-02"
)

// Window is one shift period as half-open UTC instants [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Key returns the business-date grouping key: the calendar date of the
// window's 18:00 start in the business timezone.
func (w Window) Key() string {
	return w.Start.In(BusinessZone).Format(DateKeyLayout)
}

// Contains reports whether t falls inside the half-open window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowAt returns the shift window enclosing t, or ok=false when t falls
// in the [03:00, 18:00) local gap with no open shift.
func WindowAt(t time.Time) (Window, bool) {
	local := t.In(BusinessZone)
	switch {
	case local.Hour() >= openHour:
		return windowStartingOn(local.Year(), local.Month(), local.Day()), true
	case local.Hour() < closeHour:
		prev := local.AddDate(0, 0, -1)
		return windowStartingOn(prev.Year(), prev.Month(), prev.Day()), true
	default:
		return Window{}, false
	}
}

// LastCompleted returns the most recent shift window whose end is at or
// before t. When t is inside an open window, that window is still in
// progress, so the previous one is returned.
func LastCompleted(t time.Time) Window {
	if w, ok := WindowAt(t); ok {
		return Window{Start: w.Start.AddDate(0, 0, -1), End: w.End.AddDate(0, 0, -1)}
	}
	local := t.In(BusinessZone)
	prev := local.AddDate(0, 0, -1)
	return windowStartingOn(prev.Year(), prev.Month(), prev.Day())
}

// WindowForDate returns the shift window for a business-date key.
func WindowForDate(date string) (Window, error) {
	parsed, err := time.ParseInLocation(DateKeyLayout, date, BusinessZone)
	if err != nil {
		return Window{}, fmt.Errorf("invalid business date %q: %w", date, err)
	}
	return windowStartingOn(parsed.Year(), parsed.Month(), parsed.Day()), nil
}

// NextClose returns the first shift-close instant (03:00 local) strictly
// after t, as a UTC instant. Used by the scheduler to compute the daily
// close-sync deadline.
func NextClose(t time.Time) time.Time {
	local := t.In(BusinessZone)
	closeToday := time.Date(local.Year(), local.Month(), local.Day(), closeHour, 0, 0, 0, BusinessZone)
	if local.Before(closeToday) {
		return closeToday.UTC()
	}
	return closeToday.AddDate(0, 0, 1).UTC()
}

func windowStartingOn(year int, month time.Month, day int) Window {
	start := time.Date(year, month, day, openHour, 0, 0, 0, BusinessZone)
	end := time.Date(year, month, day+1, closeHour, 0, 0, 0, BusinessZone)
	return Window{Start: start.UTC(), End: end.UTC()}
}
