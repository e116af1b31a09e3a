// Package posclient wraps the upstream cloud POS REST API: typed,
// cursor-paginated fetches over HTTPS with bearer-token auth. It performs
// no retries; retry policy belongs to the ingestion engine.
package posclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPageLimit = 250
	maxPageLimit     = 250
	defaultTimeout   = 30 * time.Second
)

// UpstreamError is a non-2xx response from the POS API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("pos api status %d: %s", e.Status, truncate(e.Body, 200))
}

// Retryable reports whether the ingestion engine may retry the request
// that produced this error. Client errors other than 429 are permanent.
func (e *UpstreamError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// TransportError is a network-level failure reaching the POS API,
// including timeouts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pos api transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Config struct {
	BaseURL   string
	Token     string
	PageLimit int
	Timeout   time.Duration
}

type Client struct {
	baseURL   string
	token     string
	pageLimit int
	http      *http.Client
}

func New(cfg Config) *Client {
	limit := cfg.PageLimit
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		pageLimit: limit,
		http:      &http.Client{Timeout: timeout},
	}
}

// ReceiptPage is one page of upstream receipts. An empty Cursor means the
// listing is exhausted.
type ReceiptPage struct {
	Receipts []Receipt
	Cursor   string
}

type ShiftPage struct {
	Shifts []Shift
	Cursor string
}

type ItemPage struct {
	Items  []Item
	Cursor string
}

// Receipt is the upstream wire shape. Monetary fields are decimal numbers
// in the business currency; conversion to cents happens in the ingestion
// engine.
type Receipt struct {
	ID         string          `json:"id"`
	Number     string          `json:"receipt_number"`
	Type       string          `json:"receipt_type"`
	CreatedAt  string          `json:"created_at"`
	TotalMoney json.Number     `json:"total_money"`
	TotalTax   json.Number     `json:"total_tax"`
	EmployeeID string          `json:"employee_id"`
	LineItems  []LineItem      `json:"line_items"`
	Payments   []Payment       `json:"payments"`
	RawPayload json.RawMessage `json:"-"`
}

type LineItem struct {
	ItemID     string           `json:"item_id"`
	Name       string           `json:"item_name"`
	Variant    string           `json:"variant_name"`
	Quantity   json.Number      `json:"quantity"`
	Price      json.Number      `json:"price"`
	TotalMoney json.Number      `json:"total_money"`
	Modifiers  []ModifierOption `json:"line_modifiers"`
}

type ModifierOption struct {
	Name   string      `json:"name"`
	Option string      `json:"option"`
	Money  json.Number `json:"money"`
}

type Payment struct {
	PaymentTypeID string      `json:"payment_type_id"`
	Money         json.Number `json:"money_amount"`
}

type Shift struct {
	ID           string      `json:"id"`
	OpenedAt     string      `json:"opened_at"`
	ClosedAt     string      `json:"closed_at"`
	StartingCash json.Number `json:"starting_cash"`
	ExpectedCash json.Number `json:"expected_cash"`
	PaidOut      json.Number `json:"paid_out"`
	ActualCash   json.Number `json:"actual_cash"`
}

type Item struct {
	ID       string `json:"id"`
	Name     string `json:"item_name"`
	Category string `json:"category_name"`
}

type PaymentType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type receiptEnvelope struct {
	Receipts []json.RawMessage `json:"receipts"`
	Cursor   string            `json:"cursor"`
}

type shiftEnvelope struct {
	Shifts []Shift `json:"shifts"`
	Cursor string  `json:"cursor"`
}

type itemEnvelope struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor"`
}

type paymentTypeEnvelope struct {
	PaymentTypes []PaymentType `json:"payment_types"`
}

// FetchReceipts returns one page of receipts created inside [start, end].
// Pass the cursor from the previous page to continue; an empty cursor
// starts from the first page. Each receipt keeps its raw JSON payload for
// audit storage.
func (c *Client) FetchReceipts(ctx context.Context, start, end time.Time, cursor string) (ReceiptPage, error) {
	params := url.Values{}
	params.Set("created_at_min", start.UTC().Format(time.RFC3339))
	params.Set("created_at_max", end.UTC().Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(c.pageLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var envelope receiptEnvelope
	if err := c.get(ctx, "/v1/receipts", params, &envelope); err != nil {
		return ReceiptPage{}, err
	}

	page := ReceiptPage{
		Receipts: make([]Receipt, 0, len(envelope.Receipts)),
		Cursor:   envelope.Cursor,
	}
	for _, raw := range envelope.Receipts {
		var receipt Receipt
		if err := json.Unmarshal(raw, &receipt); err != nil {
			return ReceiptPage{}, fmt.Errorf("decode receipt: %w", err)
		}
		receipt.RawPayload = raw
		page.Receipts = append(page.Receipts, receipt)
	}
	return page, nil
}

func (c *Client) FetchShifts(ctx context.Context, start, end time.Time, cursor string) (ShiftPage, error) {
	params := url.Values{}
	params.Set("opened_at_min", start.UTC().Format(time.RFC3339))
	params.Set("opened_at_max", end.UTC().Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(c.pageLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var envelope shiftEnvelope
	if err := c.get(ctx, "/v1/shifts", params, &envelope); err != nil {
		return ShiftPage{}, err
	}
	return ShiftPage{Shifts: envelope.Shifts, Cursor: envelope.Cursor}, nil
}

func (c *Client) FetchItems(ctx context.Context, cursor string) (ItemPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var envelope itemEnvelope
	if err := c.get(ctx, "/v1/items", params, &envelope); err != nil {
		return ItemPage{}, err
	}
	return ItemPage{Items: envelope.Items, Cursor: envelope.Cursor}, nil
}

// FetchPaymentTypes returns the full payment-type catalog. The upstream
// does not paginate this listing.
func (c *Client) FetchPaymentTypes(ctx context.Context) ([]PaymentType, error) {
	var envelope paymentTypeEnvelope
	if err := c.get(ctx, "/v1/payment_types", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.PaymentTypes, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
