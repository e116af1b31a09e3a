package domain

import (
	"encoding/json"
	"time"
)

// Receipt is one finished POS transaction pulled from the upstream API.
// Receipts are immutable once stored; aggregation and reconciliation only
// ever read them.
type Receipt struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	Type          string          `json:"type"`
	CreatedAt     time.Time       `json:"created_at"`
	TotalCents    int64           `json:"total_cents"`
	TaxCents      int64           `json:"tax_cents"`
	PaymentTypeID string          `json:"payment_type_id"`
	PaymentMethod string          `json:"payment_method"`
	CashCents     int64           `json:"cash_cents"`
	Staff         string          `json:"staff,omitempty"`
	Items         []LineItem      `json:"items"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

type LineItem struct {
	ItemID     string     `json:"item_id"`
	Name       string     `json:"name"`
	Variant    string     `json:"variant,omitempty"`
	Quantity   int        `json:"quantity"`
	UnitCents  int64      `json:"unit_cents"`
	TotalCents int64      `json:"total_cents"`
	Modifiers  []Modifier `json:"modifiers,omitempty"`
}

type Modifier struct {
	Name            string `json:"name"`
	Option          string `json:"option"`
	AdjustmentCents int64  `json:"adjustment_cents"`
}

// Shift is one business operating period, nominally 18:00-03:00 local
// time. BusinessDate is the calendar date of the 18:00 start in the
// business timezone and is the grouping key for receipts and aggregates.
type Shift struct {
	ID              string     `json:"id"`
	BusinessDate    string     `json:"business_date"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	OpeningCents    int64      `json:"opening_cents"`
	ExpectedCents   int64      `json:"expected_cents"`
	PayoutsCents    int64      `json:"payouts_cents"`
	ActualCents     *int64     `json:"actual_cents,omitempty"`
	TotalSalesCents int64      `json:"total_sales_cents"`
	ReceiptCount    int64      `json:"receipt_count"`
}

// Item and PaymentType mirror the upstream catalog. Payment types are
// needed to tell cash tenders apart from everything else.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type PaymentType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type ItemSales struct {
	Name         string `json:"name"`
	Variant      string `json:"variant,omitempty"`
	Category     string `json:"category"`
	Quantity     int64  `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

type CategorySales struct {
	Category     string `json:"category"`
	Quantity     int64  `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

type ModifierUsage struct {
	Name         string `json:"name"`
	Option       string `json:"option"`
	Count        int64  `json:"count"`
	RevenueCents int64  `json:"revenue_cents"`
}

type PaymentSales struct {
	PaymentMethod string `json:"payment_method"`
	Receipts      int64  `json:"receipts"`
	TotalCents    int64  `json:"total_cents"`
}

// ShiftAggregate is a derived, recomputable summary over one shift's
// receipt set. It is a read-through cache value, never a source of truth.
type ShiftAggregate struct {
	BusinessDate    string          `json:"business_date"`
	WindowStart     time.Time       `json:"window_start"`
	WindowEnd       time.Time       `json:"window_end"`
	TotalSalesCents int64           `json:"total_sales_cents"`
	ReceiptCount    int64           `json:"receipt_count"`
	RefundCount     int64           `json:"refund_count"`
	CashSalesCents  int64           `json:"cash_sales_cents"`
	ItemsSold       []ItemSales     `json:"items_sold"`
	Categories      []CategorySales `json:"categories"`
	ModifiersUsed   []ModifierUsage `json:"modifiers_used"`
	ByPayment       []PaymentSales  `json:"by_payment"`
	SkippedLines    int             `json:"skipped_lines,omitempty"`
}

type BalanceAnalysis struct {
	BusinessDate          string `json:"business_date"`
	ExpectedCents         int64  `json:"expected_cents"`
	UpstreamExpectedCents int64  `json:"upstream_expected_cents,omitempty"`
	ActualCents           *int64 `json:"actual_cents,omitempty"`
	DifferenceCents       int64  `json:"difference_cents"`
	ToleranceCents        int64  `json:"tolerance_cents"`
	Balanced              bool   `json:"balanced"`
	Pending               bool   `json:"pending"`
}

// SyncResult reports one ingestion pass. Partial success is an expected
// outcome: Errors may be non-empty while records still landed.
type SyncResult struct {
	RunID            string    `json:"run_id"`
	Mode             string    `json:"mode"`
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	Pages            int       `json:"pages"`
	RecordsProcessed int       `json:"records_processed"`
	NewReceipts      int       `json:"new_receipts"`
	NewShifts        int       `json:"new_shifts"`
	UpdatedShifts    int       `json:"updated_shifts"`
	AffectedDates    []string  `json:"affected_dates,omitempty"`
	Errors           []string  `json:"errors,omitempty"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

type TriggerSyncRequest struct {
	Mode        string `json:"mode"`
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
}

type ActualCashRequest struct {
	ActualCents int64 `json:"actual_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	ReceiptTypeSale   = "SALE"
	ReceiptTypeRefund = "REFUND"
)

const (
	SyncModeFull        = "full"
	SyncModeIncremental = "incremental"
)

const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)

const (
	PaymentKindCash    = "CASH"
	PaymentKindNonCash = "NONCASH"
)
