package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/store"
)

func TestInsertReceiptIsIdempotent(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	receipt := domain.Receipt{
		ID:         "rcpt-100",
		Number:     "A-100",
		Type:       domain.ReceiptTypeSale,
		CreatedAt:  time.Date(2025, 7, 4, 12, 30, 0, 0, time.UTC),
		TotalCents: 45000,
	}

	inserted, err := s.InsertReceipt(ctx, receipt)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to report inserted")
	}

	inserted, err = s.InsertReceipt(ctx, receipt)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate insert to be a no-op")
	}

	count, err := s.CountReceiptsBetween(ctx, receipt.CreatedAt.Add(-time.Hour), receipt.CreatedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored receipt, got %d", count)
	}
}

func TestInsertReceiptRejectsMissingID(t *testing.T) {
	s := NewSeeded()

	_, err := s.InsertReceipt(context.Background(), domain.Receipt{Number: "A-1"})
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestUpsertShiftDoesNotRewriteOpeningFields(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	openedAt := time.Date(2025, 7, 4, 11, 0, 0, 0, time.UTC)
	first := domain.Shift{
		ID:           "shift-1",
		BusinessDate: "2025-07-04",
		OpenedAt:     openedAt,
		OpeningCents: 100000,
	}
	inserted, updated, err := s.UpsertShift(ctx, first)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !inserted || updated {
		t.Fatalf("expected insert on first upsert, got inserted=%v updated=%v", inserted, updated)
	}

	closedAt := openedAt.Add(9 * time.Hour)
	second := first
	second.OpenedAt = openedAt.Add(time.Minute)
	second.OpeningCents = 999999
	second.ClosedAt = &closedAt
	second.ExpectedCents = 350000
	second.PayoutsCents = 20000

	inserted, updated, err = s.UpsertShift(ctx, second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted || !updated {
		t.Fatalf("expected update on second upsert, got inserted=%v updated=%v", inserted, updated)
	}

	stored, err := s.GetShiftByDate(ctx, "2025-07-04")
	if err != nil {
		t.Fatalf("get by date: %v", err)
	}
	if !stored.OpenedAt.Equal(openedAt) {
		t.Fatalf("opened_at must not change, got %v", stored.OpenedAt)
	}
	if stored.OpeningCents != 100000 {
		t.Fatalf("opening_cents must not change, got %d", stored.OpeningCents)
	}
	if stored.ClosedAt == nil || !stored.ClosedAt.Equal(closedAt) {
		t.Fatalf("closed_at not applied: %v", stored.ClosedAt)
	}
	if stored.ExpectedCents != 350000 || stored.PayoutsCents != 20000 {
		t.Fatalf("mutable fields not applied: expected=%d payouts=%d", stored.ExpectedCents, stored.PayoutsCents)
	}
}

func TestUpsertShiftKeepsActualCentsWhenIncomingNil(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	shift := domain.Shift{
		ID:           "shift-2",
		BusinessDate: "2025-07-05",
		OpenedAt:     time.Date(2025, 7, 5, 11, 0, 0, 0, time.UTC),
	}
	if _, _, err := s.UpsertShift(ctx, shift); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.SetShiftActualCents(ctx, "2025-07-05", 123400); err != nil {
		t.Fatalf("set actual: %v", err)
	}

	// A later sync pass carries no counted cash; the recorded value
	// must survive.
	if _, _, err := s.UpsertShift(ctx, shift); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	stored, err := s.GetShiftByDate(ctx, "2025-07-05")
	if err != nil {
		t.Fatalf("get by date: %v", err)
	}
	if stored.ActualCents == nil || *stored.ActualCents != 123400 {
		t.Fatalf("actual_cents lost on re-upsert: %v", stored.ActualCents)
	}
}

func TestUpsertShiftSupersedesLocalShiftForSameDate(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	windowStart := time.Date(2025, 7, 4, 11, 0, 0, 0, time.UTC)
	local := domain.Shift{
		ID:           "shift-local-1",
		BusinessDate: "2025-07-04",
		OpenedAt:     windowStart,
	}
	if _, _, err := s.UpsertShift(ctx, local); err != nil {
		t.Fatalf("local upsert: %v", err)
	}
	if _, err := s.SetShiftActualCents(ctx, "2025-07-04", 98500); err != nil {
		t.Fatalf("set actual: %v", err)
	}

	upstream := domain.Shift{
		ID:           "sh-1",
		BusinessDate: "2025-07-04",
		OpenedAt:     windowStart.Add(-10 * time.Minute),
		OpeningCents: 100000,
		PayoutsCents: 5000,
	}
	inserted, updated, err := s.UpsertShift(ctx, upstream)
	if err != nil {
		t.Fatalf("upstream upsert: %v", err)
	}
	if inserted || !updated {
		t.Fatalf("expected supersession to report updated, got inserted=%v updated=%v", inserted, updated)
	}

	stored, err := s.GetShiftByDate(ctx, "2025-07-04")
	if err != nil {
		t.Fatalf("get by date: %v", err)
	}
	if stored.ID != "sh-1" {
		t.Fatalf("upstream identity must win, got %s", stored.ID)
	}
	if stored.OpeningCents != 100000 || !stored.OpenedAt.Equal(upstream.OpenedAt) {
		t.Fatalf("upstream opening fields must win: opening=%d opened_at=%v", stored.OpeningCents, stored.OpenedAt)
	}
	if stored.ActualCents == nil || *stored.ActualCents != 98500 {
		t.Fatalf("recorded actual cash lost in supersession: %v", stored.ActualCents)
	}

	shifts, err := s.ListLatestShifts(ctx, 10)
	if err != nil {
		t.Fatalf("list shifts: %v", err)
	}
	if len(shifts) != 1 {
		t.Fatalf("expected 1 shift row for the date, got %d", len(shifts))
	}
}

func TestListReceiptsBetweenIsHalfOpen(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	start := time.Date(2025, 7, 4, 11, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 4, 20, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		id string
		at time.Time
	}{
		{"rcpt-before", start.Add(-time.Second)},
		{"rcpt-at-start", start},
		{"rcpt-inside", start.Add(4 * time.Hour)},
		{"rcpt-at-end", end},
	} {
		if _, err := s.InsertReceipt(ctx, domain.Receipt{ID: tc.id, CreatedAt: tc.at}); err != nil {
			t.Fatalf("insert %s: %v", tc.id, err)
		}
	}

	receipts, err := s.ListReceiptsBetween(ctx, start, end)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(receipts) != 2 {
		t.Fatalf("expected 2 receipts in [start,end), got %d", len(receipts))
	}
	if receipts[0].ID != "rcpt-at-start" || receipts[1].ID != "rcpt-inside" {
		t.Fatalf("unexpected order: %s, %s", receipts[0].ID, receipts[1].ID)
	}
}

func TestSeededUsersExist(t *testing.T) {
	s := NewSeeded()

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(users))
	}
	if users[0].Username != "admin" || users[1].Username != "viewer" {
		t.Fatalf("unexpected seeded usernames: %s, %s", users[0].Username, users[1].Username)
	}
}
