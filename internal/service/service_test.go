package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiftbook/backend/internal/cache"
	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/shiftclock"
	"shiftbook/backend/internal/store"
	"shiftbook/backend/internal/store/memory"
)

type fakeCache struct {
	values  map[string]*domain.ShiftAggregate
	sets    int
	gets    int
	deletes []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]*domain.ShiftAggregate)}
}

func (c *fakeCache) Get(_ context.Context, key string) (*domain.ShiftAggregate, bool, error) {
	c.gets++
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value *domain.ShiftAggregate, _ time.Duration) error {
	c.sets++
	c.values[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.deletes = append(c.deletes, key)
		delete(c.values, key)
	}
	return nil
}

type fakeSyncer struct {
	result domain.SyncResult
	err    error
	runs   []string
}

func (f *fakeSyncer) SyncWindow(_ context.Context, _, _ time.Time, mode string) (domain.SyncResult, error) {
	f.runs = append(f.runs, mode)
	return f.result, f.err
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func seedReceipts(t *testing.T, repo *memory.Store, window shiftclock.Window) {
	t.Helper()
	receipts := []domain.Receipt{
		{
			ID: "r-1", Type: domain.ReceiptTypeSale, CreatedAt: window.Start.Add(time.Hour),
			TotalCents: 10000, PaymentMethod: "cash", CashCents: 10000,
			Items: []domain.LineItem{{Name: "Smash Burger", Quantity: 2, TotalCents: 10000}},
		},
		{
			ID: "r-2", Type: domain.ReceiptTypeRefund, CreatedAt: window.Start.Add(2 * time.Hour),
			TotalCents: -3000, PaymentMethod: "cash", CashCents: -3000,
			Items: []domain.LineItem{{Name: "Smash Burger", Quantity: 1, TotalCents: 3000}},
		},
	}
	for _, receipt := range receipts {
		if _, err := repo.InsertReceipt(context.Background(), receipt); err != nil {
			t.Fatalf("seed receipt %s: %v", receipt.ID, err)
		}
	}
}

func TestGetShiftAggregateReadThrough(t *testing.T) {
	window, err := shiftclock.WindowForDate("2025-07-04")
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	repo := memory.NewSeeded()
	seedReceipts(t, repo, window)
	aggCache := newFakeCache()
	svc := New(repo, aggCache, &fakeSyncer{}, time.Minute)
	ctx := context.Background()

	first, err := svc.GetShiftAggregate(ctx, "2025-07-04")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first.TotalSalesCents != 7000 {
		t.Fatalf("total = %d, want 7000", first.TotalSalesCents)
	}
	if aggCache.sets != 1 {
		t.Fatalf("expected one cache fill, got %d", aggCache.sets)
	}

	second, err := svc.GetShiftAggregate(ctx, "2025-07-04")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if aggCache.sets != 1 {
		t.Fatalf("second get must be served from cache")
	}
	if second.TotalSalesCents != first.TotalSalesCents {
		t.Fatalf("cached aggregate differs")
	}
}

func TestGetShiftAggregateRejectsBadDate(t *testing.T) {
	svc := New(memory.NewSeeded(), cache.NoopAggregateCache{}, &fakeSyncer{}, time.Minute)

	_, err := svc.GetShiftAggregate(context.Background(), "04-07-2025")
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestSyncWindowSettlesAffectedDates(t *testing.T) {
	window, err := shiftclock.WindowForDate("2025-07-04")
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	repo := memory.NewSeeded()
	seedReceipts(t, repo, window)
	if _, _, err := repo.UpsertShift(context.Background(), domain.Shift{
		ID: "sh-1", BusinessDate: "2025-07-04", OpenedAt: window.Start,
	}); err != nil {
		t.Fatalf("seed shift: %v", err)
	}

	aggCache := newFakeCache()
	aggCache.values["aggregate:2025-07-04"] = &domain.ShiftAggregate{BusinessDate: "2025-07-04"}

	syncer := &fakeSyncer{result: domain.SyncResult{
		Status:        domain.SyncStatusSuccess,
		AffectedDates: []string{"2025-07-04"},
	}}
	svc := New(repo, aggCache, syncer, time.Minute)

	result, err := svc.SyncWindow(context.Background(), window.Start, window.End, domain.SyncModeFull)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Status != domain.SyncStatusSuccess {
		t.Fatalf("status = %s", result.Status)
	}

	if len(aggCache.deletes) != 1 || aggCache.deletes[0] != "aggregate:2025-07-04" {
		t.Fatalf("cache invalidation missing: %v", aggCache.deletes)
	}

	shift, err := repo.GetShiftByDate(context.Background(), "2025-07-04")
	if err != nil {
		t.Fatalf("get shift: %v", err)
	}
	if shift.TotalSalesCents != 7000 || shift.ReceiptCount != 2 {
		t.Fatalf("persisted totals = %d/%d, want 7000/2", shift.TotalSalesCents, shift.ReceiptCount)
	}
}

func TestRecordActualCashRequiresAdmin(t *testing.T) {
	svc := New(memory.NewSeeded(), cache.NoopAggregateCache{}, &fakeSyncer{}, time.Minute)

	viewerCtx := WithActor(context.Background(), domain.Actor{Username: "viewer", Role: "viewer"})
	_, err := svc.RecordActualCash(viewerCtx, "2025-07-04", domain.ActualCashRequest{ActualCents: 100})
	if err == nil {
		t.Fatalf("expected role error")
	}

	_, err = svc.RecordActualCash(context.Background(), "2025-07-04", domain.ActualCashRequest{ActualCents: 100})
	if err == nil {
		t.Fatalf("expected role error without actor")
	}
}

func TestRecordActualCashProducesBalance(t *testing.T) {
	window, err := shiftclock.WindowForDate("2025-07-04")
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	repo := memory.NewSeeded()
	seedReceipts(t, repo, window)
	if _, _, err := repo.UpsertShift(context.Background(), domain.Shift{
		ID: "sh-1", BusinessDate: "2025-07-04", OpenedAt: window.Start, OpeningCents: 100000,
	}); err != nil {
		t.Fatalf("seed shift: %v", err)
	}

	svc := New(repo, cache.NoopAggregateCache{}, &fakeSyncer{}, time.Minute)

	// expected = 100000 opening + 7000 net cash = 107000
	analysis, err := svc.RecordActualCash(adminCtx(), "2025-07-04", domain.ActualCashRequest{ActualCents: 106500})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if analysis.Pending {
		t.Fatalf("balance still pending after recording actual cash")
	}
	if analysis.DifferenceCents != -500 {
		t.Fatalf("difference = %d, want -500", analysis.DifferenceCents)
	}
	if !analysis.Balanced {
		t.Fatalf("500 cents short is inside tolerance")
	}
}

func TestTriggerSyncDefaultsFullToLastCompletedShift(t *testing.T) {
	syncer := &fakeSyncer{result: domain.SyncResult{Status: domain.SyncStatusSuccess}}
	svc := New(memory.NewSeeded(), cache.NoopAggregateCache{}, syncer, time.Minute)
	svc.now = func() time.Time {
		// 2025-07-05 12:00 UTC is in the daily gap; the last completed
		// shift is business date 2025-07-04.
		return time.Date(2025, 7, 5, 12, 0, 0, 0, time.UTC)
	}

	result, err := svc.TriggerSync(adminCtx(), domain.TriggerSyncRequest{Mode: domain.SyncModeFull})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if result.Status != domain.SyncStatusSuccess {
		t.Fatalf("status = %s", result.Status)
	}
	if len(syncer.runs) != 1 || syncer.runs[0] != domain.SyncModeFull {
		t.Fatalf("runs = %v", syncer.runs)
	}
}

func TestTriggerSyncRejectsBadRequests(t *testing.T) {
	svc := New(memory.NewSeeded(), cache.NoopAggregateCache{}, &fakeSyncer{}, time.Minute)

	if _, err := svc.TriggerSync(adminCtx(), domain.TriggerSyncRequest{Mode: "bulk"}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("bad mode: %v", err)
	}
	if _, err := svc.TriggerSync(adminCtx(), domain.TriggerSyncRequest{
		WindowStart: "2025-07-04T20:00:00Z",
		WindowEnd:   "2025-07-04T11:00:00Z",
	}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("inverted window: %v", err)
	}
	if _, err := svc.TriggerSync(context.Background(), domain.TriggerSyncRequest{}); err == nil {
		t.Fatalf("expected role error without actor")
	}
}
