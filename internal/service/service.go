package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"shiftbook/backend/internal/aggregate"
	"shiftbook/backend/internal/cache"
	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/reconcile"
	"shiftbook/backend/internal/shiftclock"
	"shiftbook/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Syncer abstracts the ingestion engine for the service layer.
type Syncer interface {
	SyncWindow(ctx context.Context, start, end time.Time, mode string) (domain.SyncResult, error)
}

type Service struct {
	repo     store.Repository
	aggCache cache.AggregateCache
	syncer   Syncer
	cacheTTL time.Duration
	now      func() time.Time
}

func New(repo store.Repository, aggCache cache.AggregateCache, syncer Syncer, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Service{
		repo:     repo,
		aggCache: aggCache,
		syncer:   syncer,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func aggregateCacheKey(businessDate string) string {
	return "aggregate:" + businessDate
}

func (s *Service) GetReceiptsInRange(ctx context.Context, start, end time.Time) ([]domain.Receipt, error) {
	if !start.Before(end) {
		return nil, store.ErrInvalidRecord
	}
	return s.repo.ListReceiptsBetween(ctx, start, end)
}

// GetShiftAggregate returns the sales summary for one business date,
// served from cache when present and recomputed from stored receipts
// otherwise. A cache failure degrades to recompute, never to an error.
func (s *Service) GetShiftAggregate(ctx context.Context, businessDate string) (domain.ShiftAggregate, error) {
	window, err := shiftclock.WindowForDate(businessDate)
	if err != nil {
		return domain.ShiftAggregate{}, store.ErrInvalidRecord
	}

	key := aggregateCacheKey(businessDate)
	if cached, found, err := s.aggCache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: aggregate cache get %s: %v", key, err)
	} else if found {
		return *cached, nil
	}

	agg, err := s.computeAggregate(ctx, window)
	if err != nil {
		return domain.ShiftAggregate{}, err
	}

	if err := s.aggCache.Set(ctx, key, &agg, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: aggregate cache set %s: %v", key, err)
	}
	return agg, nil
}

func (s *Service) computeAggregate(ctx context.Context, window shiftclock.Window) (domain.ShiftAggregate, error) {
	receipts, err := s.repo.ListReceiptsBetween(ctx, window.Start, window.End)
	if err != nil {
		return domain.ShiftAggregate{}, err
	}
	return aggregate.Compute(window, receipts), nil
}

// GetShiftBalance produces the cash reconciliation report for one
// business date. It requires a stored shift; the aggregate side is
// recomputed on demand.
func (s *Service) GetShiftBalance(ctx context.Context, businessDate string) (domain.BalanceAnalysis, error) {
	shift, err := s.repo.GetShiftByDate(ctx, businessDate)
	if err != nil {
		return domain.BalanceAnalysis{}, err
	}
	agg, err := s.GetShiftAggregate(ctx, businessDate)
	if err != nil {
		return domain.BalanceAnalysis{}, err
	}
	return reconcile.Analyze(*shift, agg), nil
}

func (s *Service) GetLatestShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit < 1 || limit > 200 {
		limit = 30
	}
	return s.repo.ListLatestShifts(ctx, limit)
}

func (s *Service) GetShiftByDate(ctx context.Context, businessDate string) (domain.Shift, error) {
	if _, err := shiftclock.WindowForDate(businessDate); err != nil {
		return domain.Shift{}, store.ErrInvalidRecord
	}
	shift, err := s.repo.GetShiftByDate(ctx, businessDate)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

// RecordActualCash stores the counted drawer cash for a shift and
// returns the refreshed balance analysis. Admin only.
func (s *Service) RecordActualCash(ctx context.Context, businessDate string, req domain.ActualCashRequest) (domain.BalanceAnalysis, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.BalanceAnalysis{}, fmt.Errorf("admin role required")
	}
	if req.ActualCents < 0 {
		return domain.BalanceAnalysis{}, store.ErrInvalidRecord
	}
	if _, err := shiftclock.WindowForDate(businessDate); err != nil {
		return domain.BalanceAnalysis{}, store.ErrInvalidRecord
	}

	shift, err := s.repo.SetShiftActualCents(ctx, businessDate, req.ActualCents)
	if err != nil {
		return domain.BalanceAnalysis{}, err
	}
	log.Printf("[service] actual cash recorded for %s by %s: %d cents", businessDate, actor.Username, req.ActualCents)

	agg, err := s.GetShiftAggregate(ctx, businessDate)
	if err != nil {
		return domain.BalanceAnalysis{}, err
	}
	return reconcile.Analyze(*shift, agg), nil
}

// SyncWindow runs one ingestion pass and settles its consequences:
// persisted shift totals and invalidated aggregate caches for every
// affected business date. The scheduler and the manual trigger both come
// through here.
func (s *Service) SyncWindow(ctx context.Context, start, end time.Time, mode string) (domain.SyncResult, error) {
	result, err := s.syncer.SyncWindow(ctx, start, end, mode)
	if err != nil {
		return result, err
	}

	for _, businessDate := range result.AffectedDates {
		window, wErr := shiftclock.WindowForDate(businessDate)
		if wErr != nil {
			log.Printf("[service] WARN: bad affected date %q: %v", businessDate, wErr)
			continue
		}
		agg, aErr := s.computeAggregate(ctx, window)
		if aErr != nil {
			log.Printf("[service] WARN: recompute aggregate %s: %v", businessDate, aErr)
			continue
		}
		if tErr := s.repo.SetShiftTotals(ctx, businessDate, agg.TotalSalesCents, agg.ReceiptCount); tErr != nil && !errors.Is(tErr, store.ErrNotFound) {
			log.Printf("[service] WARN: persist totals %s: %v", businessDate, tErr)
		}
		if cErr := s.aggCache.Delete(ctx, aggregateCacheKey(businessDate)); cErr != nil {
			log.Printf("[service] WARN: invalidate aggregate cache %s: %v", businessDate, cErr)
		}
	}

	return result, nil
}

// TriggerSync starts a sync pass from an operator request. With no
// explicit window, full mode covers the last completed shift and
// incremental mode covers the last hour.
func (s *Service) TriggerSync(ctx context.Context, req domain.TriggerSyncRequest) (domain.SyncResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SyncResult{}, fmt.Errorf("admin role required")
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = domain.SyncModeIncremental
	}
	if mode != domain.SyncModeFull && mode != domain.SyncModeIncremental {
		return domain.SyncResult{}, store.ErrInvalidRecord
	}

	var start, end time.Time
	switch {
	case req.WindowStart != "" || req.WindowEnd != "":
		var err error
		if start, err = time.Parse(time.RFC3339, req.WindowStart); err != nil {
			return domain.SyncResult{}, store.ErrInvalidRecord
		}
		if end, err = time.Parse(time.RFC3339, req.WindowEnd); err != nil {
			return domain.SyncResult{}, store.ErrInvalidRecord
		}
		if !start.Before(end) {
			return domain.SyncResult{}, store.ErrInvalidRecord
		}
	case mode == domain.SyncModeFull:
		window := shiftclock.LastCompleted(s.now())
		start, end = window.Start, window.End
	default:
		end = s.now()
		start = end.Add(-time.Hour)
	}

	log.Printf("[service] manual %s sync by %s: [%s, %s)", mode, actor.Username,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	return s.SyncWindow(ctx, start, end, mode)
}

func (s *Service) ListPaymentTypes(ctx context.Context) ([]domain.PaymentType, error) {
	return s.repo.ListPaymentTypes(ctx)
}
