package store

import (
	"context"
	"errors"
	"time"

	"shiftbook/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Repository is the single shared mutable resource in the system. The
// insert-or-noop contracts of InsertReceipt and UpsertShift are the
// concurrency-safety boundary: concurrent sync passes racing on the same
// upstream record must both succeed with only one write taking effect.
type Repository interface {
	// InsertReceipt stores a receipt keyed by its upstream identifier.
	// Re-inserting a known identifier is a no-op, never an overwrite;
	// inserted reports whether this call created the row.
	InsertReceipt(ctx context.Context, receipt domain.Receipt) (inserted bool, err error)
	GetReceiptByID(ctx context.Context, id string) (*domain.Receipt, error)
	ListReceiptsBetween(ctx context.Context, start, end time.Time) ([]domain.Receipt, error)
	CountReceiptsBetween(ctx context.Context, start, end time.Time) (int64, error)

	// UpsertShift inserts a new shift or applies the restricted update
	// path to an existing one: only fields that legitimately change while
	// a shift is open (close time, cash figures, derived totals) are
	// touched. Identity and opening fields never change on update.
	UpsertShift(ctx context.Context, shift domain.Shift) (inserted bool, updated bool, err error)
	GetShiftByDate(ctx context.Context, businessDate string) (*domain.Shift, error)
	ListLatestShifts(ctx context.Context, limit int) ([]domain.Shift, error)
	SetShiftActualCents(ctx context.Context, businessDate string, actualCents int64) (*domain.Shift, error)
	SetShiftTotals(ctx context.Context, businessDate string, totalSalesCents int64, receiptCount int64) error

	UpsertItem(ctx context.Context, item domain.Item) error
	UpsertPaymentType(ctx context.Context, paymentType domain.PaymentType) error
	ListPaymentTypes(ctx context.Context) ([]domain.PaymentType, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
