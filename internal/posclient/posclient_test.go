package posclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, Token: "test-token", PageLimit: 2})
}

func TestFetchReceiptsPaginates(t *testing.T) {
	pages := map[string]string{
		"": `{"receipts":[
			{"id":"r-1","receipt_type":"SALE","created_at":"2025-07-04T12:00:00Z","total_money":"100.00"},
			{"id":"r-2","receipt_type":"SALE","created_at":"2025-07-04T12:05:00Z","total_money":"20.50"}
		],"cursor":"next-1"}`,
		"next-1": `{"receipts":[
			{"id":"r-3","receipt_type":"REFUND","created_at":"2025-07-04T12:10:00Z","total_money":"20.50"}
		],"cursor":""}`,
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Path != "/v1/receipts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("created_at_min") == "" || query.Get("created_at_max") == "" {
			t.Errorf("window params missing: %v", query)
		}
		if query.Get("limit") != "2" {
			t.Errorf("limit = %q", query.Get("limit"))
		}
		body, ok := pages[query.Get("cursor")]
		if !ok {
			t.Errorf("unexpected cursor %q", query.Get("cursor"))
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	start := time.Date(2025, 7, 4, 11, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 4, 20, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first, err := client.FetchReceipts(ctx, start, end, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Receipts) != 2 || first.Cursor != "next-1" {
		t.Fatalf("first page = %d receipts, cursor %q", len(first.Receipts), first.Cursor)
	}
	if len(first.Receipts[0].RawPayload) == 0 {
		t.Fatalf("raw payload not preserved")
	}

	second, err := client.FetchReceipts(ctx, start, end, first.Cursor)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Receipts) != 1 || second.Cursor != "" {
		t.Fatalf("second page = %d receipts, cursor %q", len(second.Receipts), second.Cursor)
	}
	if second.Receipts[0].Type != "REFUND" {
		t.Fatalf("type = %q", second.Receipts[0].Type)
	}
}

func TestFetchReceiptsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.FetchReceipts(context.Background(), time.Now().Add(-time.Hour), time.Now(), "")
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstreamErr.Status != http.StatusTooManyRequests {
		t.Fatalf("status = %d", upstreamErr.Status)
	}
	if !upstreamErr.Retryable() {
		t.Fatalf("429 must be retryable")
	}
}

func TestUpstreamErrorRetryable(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		err := &UpstreamError{Status: tc.status}
		if err.Retryable() != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tc.status, err.Retryable(), tc.retryable)
		}
	}
}

func TestFetchReceiptsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := New(Config{BaseURL: server.URL, Token: "t"})
	server.Close()

	_, err := client.FetchReceipts(context.Background(), time.Now().Add(-time.Hour), time.Now(), "")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestFetchPaymentTypes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_types" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment_types":[
			{"id":"pt-1","name":"Cash","type":"CASH"},
			{"id":"pt-2","name":"Card","type":"CARD"}
		]}`))
	})

	types, err := client.FetchPaymentTypes(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(types) != 2 || types[0].Type != "CASH" {
		t.Fatalf("types = %+v", types)
	}
}

func TestFetchShifts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/shifts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"shifts":[
			{"id":"sh-1","opened_at":"2025-07-04T11:00:00Z","closed_at":"2025-07-04T20:00:00Z",
			 "starting_cash":"1000.00","expected_cash":"1450.00","paid_out":"50.00"}
		],"cursor":""}`))
	})

	page, err := client.FetchShifts(context.Background(),
		time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC), "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(page.Shifts) != 1 || page.Shifts[0].StartingCash != "1000.00" {
		t.Fatalf("shifts = %+v", page.Shifts)
	}
}
