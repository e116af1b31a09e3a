// Package ingest pulls receipts, shifts, and catalog data from the
// upstream POS API and lands them in the local store. Every pass is
// resumable and idempotent: pages are persisted as they arrive, duplicate
// records are no-ops, and a failed pass can simply be re-run over the
// same window.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/posclient"
	"shiftbook/backend/internal/shiftclock"
	"shiftbook/backend/internal/store"
	"shiftbook/backend/internal/xid"
)

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
	// maxPages caps one drain so a broken upstream cursor cannot spin
	// the engine forever.
	maxPages = 5000
)

// Fetcher is the slice of the POS client the engine needs. The concrete
// implementation is posclient.Client; tests substitute scripted fakes.
type Fetcher interface {
	FetchReceipts(ctx context.Context, start, end time.Time, cursor string) (posclient.ReceiptPage, error)
	FetchShifts(ctx context.Context, start, end time.Time, cursor string) (posclient.ShiftPage, error)
	FetchItems(ctx context.Context, cursor string) (posclient.ItemPage, error)
	FetchPaymentTypes(ctx context.Context) ([]posclient.PaymentType, error)
}

type Engine struct {
	fetcher Fetcher
	repo    store.Repository
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

func NewEngine(fetcher Fetcher, repo store.Repository) *Engine {
	return &Engine{
		fetcher: fetcher,
		repo:    repo,
		now:     func() time.Time { return time.Now().UTC() },
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SyncWindow runs one ingestion pass over [start, end). It refreshes the
// payment-type and item catalogs, drains the receipt listing page by
// page, then upserts shifts, inventing a local shift record for any
// business date that has receipts but no upstream shift. The returned
// SyncResult is always populated, including on failure.
func (e *Engine) SyncWindow(ctx context.Context, start, end time.Time, mode string) (domain.SyncResult, error) {
	result := domain.SyncResult{
		RunID:       xid.New("sync"),
		Mode:        mode,
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
		StartedAt:   e.now(),
	}
	log.Printf("[ingest] run %s: mode=%s window=[%s, %s)",
		result.RunID, mode, result.WindowStart.Format(time.RFC3339), result.WindowEnd.Format(time.RFC3339))

	cashTypes := e.refreshCatalog(ctx, &result)

	affected := make(map[string]struct{})
	fatal := e.drainReceipts(ctx, start, end, cashTypes, &result, affected)
	if !fatal {
		e.syncShifts(ctx, start, end, &result, affected)
	}

	result.AffectedDates = make([]string, 0, len(affected))
	for date := range affected {
		result.AffectedDates = append(result.AffectedDates, date)
	}
	slices.Sort(result.AffectedDates)

	result.FinishedAt = e.now()
	switch {
	case fatal && result.RecordsProcessed == 0:
		result.Status = domain.SyncStatusFailed
	case len(result.Errors) > 0:
		result.Status = domain.SyncStatusPartial
	default:
		result.Status = domain.SyncStatusSuccess
	}

	log.Printf("[ingest] run %s: status=%s pages=%d records=%d new_receipts=%d shifts=%d/%d errors=%d",
		result.RunID, result.Status, result.Pages, result.RecordsProcessed,
		result.NewReceipts, result.NewShifts, result.UpdatedShifts, len(result.Errors))

	if result.Status == domain.SyncStatusFailed {
		return result, fmt.Errorf("sync run %s failed: %s", result.RunID, strings.Join(result.Errors, "; "))
	}
	return result, nil
}

// refreshCatalog pulls payment types and items. On fetch failure it falls
// back to the previously stored payment types so receipt classification
// keeps working offline.
func (e *Engine) refreshCatalog(ctx context.Context, result *domain.SyncResult) map[string]domain.PaymentType {
	byID := make(map[string]domain.PaymentType)

	types, err := e.fetchPaymentTypes(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("payment types: %v", err))
		log.Printf("[ingest] WARN: payment type refresh failed, using stored catalog: %v", err)
		stored, storeErr := e.repo.ListPaymentTypes(ctx)
		if storeErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("stored payment types: %v", storeErr))
			return byID
		}
		for _, pt := range stored {
			byID[pt.ID] = pt
		}
		return byID
	}

	for _, upstream := range types {
		paymentType := domain.PaymentType{
			ID:   upstream.ID,
			Name: upstream.Name,
			Kind: classifyPaymentKind(upstream.Type),
		}
		if err := e.repo.UpsertPaymentType(ctx, paymentType); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("store payment type %s: %v", paymentType.ID, err))
			continue
		}
		byID[paymentType.ID] = paymentType
	}

	e.refreshItems(ctx, result)
	return byID
}

func (e *Engine) refreshItems(ctx context.Context, result *domain.SyncResult) {
	cursor := ""
	for page := 0; page < maxPages; page++ {
		itemPage, err := e.fetchItemPage(ctx, cursor)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("items: %v", err))
			log.Printf("[ingest] WARN: item refresh stopped: %v", err)
			return
		}
		for _, upstream := range itemPage.Items {
			item := domain.Item{ID: upstream.ID, Name: upstream.Name, Category: upstream.Category}
			if err := e.repo.UpsertItem(ctx, item); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("store item %s: %v", item.ID, err))
			}
		}
		if itemPage.Cursor == "" {
			return
		}
		cursor = itemPage.Cursor
	}
}

// drainReceipts walks the cursor chain to exhaustion, storing each page
// before requesting the next. Returns true when the drain aborted on a
// fatal fetch error; already-stored pages are kept either way.
func (e *Engine) drainReceipts(ctx context.Context, start, end time.Time, cashTypes map[string]domain.PaymentType, result *domain.SyncResult, affected map[string]struct{}) bool {
	cursor := ""
	for page := 0; page < maxPages; page++ {
		receiptPage, err := e.fetchReceiptPage(ctx, start, end, cursor)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("receipts page %d: %v", result.Pages+1, err))
			log.Printf("[ingest] receipt drain aborted on page %d: %v", result.Pages+1, err)
			return true
		}
		result.Pages++

		for _, upstream := range receiptPage.Receipts {
			result.RecordsProcessed++
			receipt, err := convertReceipt(upstream, cashTypes)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("receipt %s: %v", upstream.ID, err))
				log.Printf("[ingest] WARN: skipping receipt %s: %v", upstream.ID, err)
				continue
			}
			inserted, err := e.repo.InsertReceipt(ctx, receipt)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("store receipt %s: %v", receipt.ID, err))
				log.Printf("[ingest] WARN: store receipt %s: %v", receipt.ID, err)
				continue
			}
			if inserted {
				result.NewReceipts++
			}
			if window, ok := shiftclock.WindowAt(receipt.CreatedAt); ok {
				affected[window.Key()] = struct{}{}
			}
		}

		if receiptPage.Cursor == "" {
			return false
		}
		cursor = receiptPage.Cursor
	}

	result.Errors = append(result.Errors, fmt.Sprintf("receipt drain exceeded %d pages, cursor chain likely broken", maxPages))
	return true
}

// syncShifts upserts the upstream shift records for the window, then
// fabricates a local shift for any business date that produced receipts
// but no upstream shift. A fabricated shift has no opening float and gets
// corrected on a later pass if the upstream record shows up.
func (e *Engine) syncShifts(ctx context.Context, start, end time.Time, result *domain.SyncResult, affected map[string]struct{}) {
	seenDates := make(map[string]struct{})

	cursor := ""
	for page := 0; page < maxPages; page++ {
		shiftPage, err := e.fetchShiftPage(ctx, start, end, cursor)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("shifts: %v", err))
			log.Printf("[ingest] WARN: shift sync stopped: %v", err)
			break
		}
		for _, upstream := range shiftPage.Shifts {
			shift, err := convertShift(upstream)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("shift %s: %v", upstream.ID, err))
				log.Printf("[ingest] WARN: skipping shift %s: %v", upstream.ID, err)
				continue
			}
			seenDates[shift.BusinessDate] = struct{}{}
			inserted, updated, err := e.repo.UpsertShift(ctx, shift)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("store shift %s: %v", shift.ID, err))
				continue
			}
			if inserted {
				result.NewShifts++
				affected[shift.BusinessDate] = struct{}{}
			}
			if updated {
				result.UpdatedShifts++
				affected[shift.BusinessDate] = struct{}{}
			}
		}
		if shiftPage.Cursor == "" {
			break
		}
		cursor = shiftPage.Cursor
	}

	for date := range affected {
		if _, ok := seenDates[date]; ok {
			continue
		}
		if _, err := e.repo.GetShiftByDate(ctx, date); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("lookup shift %s: %v", date, err))
			continue
		}
		window, err := shiftclock.WindowForDate(date)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("window for %s: %v", date, err))
			continue
		}
		inserted, _, err := e.repo.UpsertShift(ctx, domain.Shift{
			ID:           xid.New("shift"),
			BusinessDate: date,
			OpenedAt:     window.Start,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("infer shift %s: %v", date, err))
			continue
		}
		if inserted {
			result.NewShifts++
			log.Printf("[ingest] inferred shift for %s with no upstream record", date)
		}
	}
}

func (e *Engine) fetchReceiptPage(ctx context.Context, start, end time.Time, cursor string) (posclient.ReceiptPage, error) {
	var page posclient.ReceiptPage
	err := e.withRetry(ctx, "receipts", func() error {
		var err error
		page, err = e.fetcher.FetchReceipts(ctx, start, end, cursor)
		return err
	})
	return page, err
}

func (e *Engine) fetchShiftPage(ctx context.Context, start, end time.Time, cursor string) (posclient.ShiftPage, error) {
	var page posclient.ShiftPage
	err := e.withRetry(ctx, "shifts", func() error {
		var err error
		page, err = e.fetcher.FetchShifts(ctx, start, end, cursor)
		return err
	})
	return page, err
}

func (e *Engine) fetchItemPage(ctx context.Context, cursor string) (posclient.ItemPage, error) {
	var page posclient.ItemPage
	err := e.withRetry(ctx, "items", func() error {
		var err error
		page, err = e.fetcher.FetchItems(ctx, cursor)
		return err
	})
	return page, err
}

func (e *Engine) fetchPaymentTypes(ctx context.Context) ([]posclient.PaymentType, error) {
	var types []posclient.PaymentType
	err := e.withRetry(ctx, "payment types", func() error {
		var err error
		types, err = e.fetcher.FetchPaymentTypes(ctx)
		return err
	})
	return types, err
}

// withRetry runs fn up to maxAttempts times with doubling backoff.
// Only transport failures and retryable upstream statuses (429, 5xx)
// are retried; other client errors are permanent.
func (e *Engine) withRetry(ctx context.Context, what string, fn func() error) error {
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == maxAttempts {
			return lastErr
		}
		log.Printf("[ingest] WARN: fetch %s attempt %d/%d: %v, retrying in %s",
			what, attempt, maxAttempts, lastErr, backoff)
		if err := e.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
	return lastErr
}

func isRetryable(err error) bool {
	var transportErr *posclient.TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var upstreamErr *posclient.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Retryable()
	}
	return false
}

func classifyPaymentKind(upstreamType string) string {
	if strings.EqualFold(strings.TrimSpace(upstreamType), "cash") {
		return domain.PaymentKindCash
	}
	return domain.PaymentKindNonCash
}

// convertReceipt maps the upstream wire shape to the storage model.
// Money converts from decimal amounts to cents. Refund receipts are
// normalized to negative totals so downstream sums net correctly no
// matter how the upstream signs them.
func convertReceipt(upstream posclient.Receipt, cashTypes map[string]domain.PaymentType) (domain.Receipt, error) {
	if strings.TrimSpace(upstream.ID) == "" {
		return domain.Receipt{}, fmt.Errorf("missing id")
	}
	createdAt, err := time.Parse(time.RFC3339, upstream.CreatedAt)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("created_at %q: %w", upstream.CreatedAt, err)
	}
	totalCents, err := moneyToCents(upstream.TotalMoney)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("total_money: %w", err)
	}
	taxCents, err := moneyToCents(upstream.TotalTax)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("total_tax: %w", err)
	}

	receiptType := strings.ToUpper(strings.TrimSpace(upstream.Type))
	if receiptType != domain.ReceiptTypeSale && receiptType != domain.ReceiptTypeRefund {
		return domain.Receipt{}, fmt.Errorf("unknown receipt type %q", upstream.Type)
	}
	sign := int64(1)
	if receiptType == domain.ReceiptTypeRefund {
		sign = -1
	}

	receipt := domain.Receipt{
		ID:         upstream.ID,
		Number:     upstream.Number,
		Type:       receiptType,
		CreatedAt:  createdAt.UTC(),
		TotalCents: sign * absCents(totalCents),
		TaxCents:   sign * absCents(taxCents),
		Staff:      upstream.EmployeeID,
		Raw:        upstream.RawPayload,
	}

	var cashCents int64
	var primaryID string
	var primaryCents int64
	for _, payment := range upstream.Payments {
		cents, err := moneyToCents(payment.Money)
		if err != nil {
			return domain.Receipt{}, fmt.Errorf("payment money: %w", err)
		}
		cents = absCents(cents)
		if paymentType, ok := cashTypes[payment.PaymentTypeID]; ok && paymentType.Kind == domain.PaymentKindCash {
			cashCents += cents
		}
		if cents >= primaryCents {
			primaryCents = cents
			primaryID = payment.PaymentTypeID
		}
	}
	receipt.CashCents = sign * cashCents
	receipt.PaymentTypeID = primaryID
	if paymentType, ok := cashTypes[primaryID]; ok {
		receipt.PaymentMethod = strings.ToLower(paymentType.Name)
	}

	receipt.Items = make([]domain.LineItem, 0, len(upstream.LineItems))
	for _, upstreamLine := range upstream.LineItems {
		line, err := convertLine(upstreamLine)
		if err != nil {
			return domain.Receipt{}, fmt.Errorf("line %q: %w", upstreamLine.Name, err)
		}
		receipt.Items = append(receipt.Items, line)
	}
	return receipt, nil
}

func convertLine(upstream posclient.LineItem) (domain.LineItem, error) {
	quantity, err := quantityToInt(upstream.Quantity)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("quantity: %w", err)
	}
	unitCents, err := moneyToCents(upstream.Price)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("price: %w", err)
	}
	totalCents, err := moneyToCents(upstream.TotalMoney)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("total_money: %w", err)
	}

	line := domain.LineItem{
		ItemID:     upstream.ItemID,
		Name:       upstream.Name,
		Variant:    upstream.Variant,
		Quantity:   quantity,
		UnitCents:  unitCents,
		TotalCents: totalCents,
	}
	for _, modifier := range upstream.Modifiers {
		cents, err := moneyToCents(modifier.Money)
		if err != nil {
			return domain.LineItem{}, fmt.Errorf("modifier %q: %w", modifier.Name, err)
		}
		line.Modifiers = append(line.Modifiers, domain.Modifier{
			Name:            modifier.Name,
			Option:          modifier.Option,
			AdjustmentCents: cents,
		})
	}
	return line, nil
}

func convertShift(upstream posclient.Shift) (domain.Shift, error) {
	if strings.TrimSpace(upstream.ID) == "" {
		return domain.Shift{}, fmt.Errorf("missing id")
	}
	openedAt, err := time.Parse(time.RFC3339, upstream.OpenedAt)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("opened_at %q: %w", upstream.OpenedAt, err)
	}

	var businessDate string
	if window, ok := shiftclock.WindowAt(openedAt); ok {
		businessDate = window.Key()
	} else {
		// Opened early, in the daily gap before 18:00 local. The local
		// calendar date is the date of the upcoming window.
		businessDate = openedAt.In(shiftclock.BusinessZone).Format(shiftclock.DateKeyLayout)
	}

	shift := domain.Shift{
		ID:           upstream.ID,
		BusinessDate: businessDate,
		OpenedAt:     openedAt.UTC(),
	}
	if upstream.ClosedAt != "" {
		closedAt, err := time.Parse(time.RFC3339, upstream.ClosedAt)
		if err != nil {
			return domain.Shift{}, fmt.Errorf("closed_at %q: %w", upstream.ClosedAt, err)
		}
		utc := closedAt.UTC()
		shift.ClosedAt = &utc
	}

	if shift.OpeningCents, err = moneyToCents(upstream.StartingCash); err != nil {
		return domain.Shift{}, fmt.Errorf("starting_cash: %w", err)
	}
	if shift.ExpectedCents, err = moneyToCents(upstream.ExpectedCash); err != nil {
		return domain.Shift{}, fmt.Errorf("expected_cash: %w", err)
	}
	if shift.PayoutsCents, err = moneyToCents(upstream.PaidOut); err != nil {
		return domain.Shift{}, fmt.Errorf("paid_out: %w", err)
	}
	if upstream.ActualCash != "" {
		actual, err := moneyToCents(upstream.ActualCash)
		if err != nil {
			return domain.Shift{}, fmt.Errorf("actual_cash: %w", err)
		}
		shift.ActualCents = &actual
	}
	return shift, nil
}

// moneyToCents converts an upstream decimal amount to cents without
// going through floating point. More than two fraction digits is
// rejected rather than silently rounded.
func moneyToCents(value json.Number) (int64, error) {
	raw := strings.TrimSpace(value.String())
	if raw == "" {
		return 0, nil
	}

	negative := false
	if strings.HasPrefix(raw, "-") {
		negative = true
		raw = raw[1:]
	}

	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has sub-cent precision", value)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	wholePart, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", value, err)
	}
	fracPart, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", value, err)
	}

	cents := wholePart*100 + fracPart
	if negative {
		cents = -cents
	}
	return cents, nil
}

func quantityToInt(value json.Number) (int, error) {
	raw := strings.TrimSpace(value.String())
	if raw == "" {
		return 0, nil
	}
	// Some POS backends report quantity as "2.0".
	if whole, frac, found := strings.Cut(raw, "."); found {
		if strings.Trim(frac, "0") != "" {
			return 0, fmt.Errorf("fractional quantity %q", value)
		}
		raw = whole
	}
	quantity, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("quantity %q: %w", value, err)
	}
	return quantity, nil
}

func absCents(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
