package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertReceipt stores one receipt and its lines. The existence check is a
// fast path only; the unique constraint on receipts.id is the
// authoritative guard, and a violation under a concurrent writer is the
// duplicate no-op, not an error.
func (s *Store) InsertReceipt(ctx context.Context, receipt domain.Receipt) (bool, error) {
	if strings.TrimSpace(receipt.ID) == "" {
		return false, store.ErrInvalidRecord
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM receipts WHERE id = $1)
	`, receipt.ID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (
			id, number, type, created_at, total_cents, tax_cents,
			payment_type_id, payment_method, cash_cents, staff, raw_payload, stored_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
	`, receipt.ID, receipt.Number, receipt.Type, receipt.CreatedAt.UTC(), receipt.TotalCents,
		receipt.TaxCents, nullIfEmpty(receipt.PaymentTypeID), nullIfEmpty(receipt.PaymentMethod),
		receipt.CashCents, nullIfEmpty(receipt.Staff), nullIfEmptyBytes(receipt.Raw))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	for position, line := range receipt.Items {
		modifiers, err := json.Marshal(line.Modifiers)
		if err != nil {
			return false, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO receipt_lines (
				receipt_id, position, item_id, name, variant, quantity,
				unit_cents, total_cents, modifiers
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, receipt.ID, position, nullIfEmpty(line.ItemID), line.Name, nullIfEmpty(line.Variant),
			line.Quantity, line.UnitCents, line.TotalCents, modifiers)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) GetReceiptByID(ctx context.Context, id string) (*domain.Receipt, error) {
	receipts, err := s.queryReceipts(ctx, `WHERE r.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, store.ErrNotFound
	}
	found := receipts[0]
	return &found, nil
}

func (s *Store) ListReceiptsBetween(ctx context.Context, start, end time.Time) ([]domain.Receipt, error) {
	return s.queryReceipts(ctx, `WHERE r.created_at >= $1 AND r.created_at < $2 ORDER BY r.created_at, r.id`, start.UTC(), end.UTC())
}

func (s *Store) CountReceiptsBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM receipts WHERE created_at >= $1 AND created_at < $2
	`, start.UTC(), end.UTC()).Scan(&count)
	return count, err
}

func (s *Store) queryReceipts(ctx context.Context, clause string, args ...any) ([]domain.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.number, r.type, r.created_at, r.total_cents, r.tax_cents,
			r.payment_type_id, r.payment_method, r.cash_cents, r.staff, r.raw_payload
		FROM receipts r
	`+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		var receipt domain.Receipt
		var paymentTypeID, paymentMethod, staff sql.NullString
		var raw []byte
		if err := rows.Scan(&receipt.ID, &receipt.Number, &receipt.Type, &receipt.CreatedAt,
			&receipt.TotalCents, &receipt.TaxCents, &paymentTypeID, &paymentMethod,
			&receipt.CashCents, &staff, &raw); err != nil {
			return nil, err
		}
		receipt.CreatedAt = receipt.CreatedAt.UTC()
		receipt.PaymentTypeID = paymentTypeID.String
		receipt.PaymentMethod = paymentMethod.String
		receipt.Staff = staff.String
		if len(raw) > 0 {
			receipt.Raw = json.RawMessage(raw)
		}
		receipt.Items = make([]domain.LineItem, 0, 4)
		receipts = append(receipts, receipt)
		ids = append(ids, receipt.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return receipts, nil
	}

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT receipt_id, item_id, name, variant, quantity, unit_cents, total_cents, modifiers
		FROM receipt_lines
		WHERE receipt_id = ANY($1)
		ORDER BY receipt_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	byID := make(map[string]int, len(receipts))
	for i, receipt := range receipts {
		byID[receipt.ID] = i
	}

	for lineRows.Next() {
		var receiptID string
		var line domain.LineItem
		var itemID, variant sql.NullString
		var modifiers []byte
		if err := lineRows.Scan(&receiptID, &itemID, &line.Name, &variant,
			&line.Quantity, &line.UnitCents, &line.TotalCents, &modifiers); err != nil {
			return nil, err
		}
		line.ItemID = itemID.String
		line.Variant = variant.String
		if len(modifiers) > 0 {
			if err := json.Unmarshal(modifiers, &line.Modifiers); err != nil {
				return nil, err
			}
		}
		idx, ok := byID[receiptID]
		if !ok {
			continue
		}
		receipts[idx].Items = append(receipts[idx].Items, line)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	return receipts, nil
}

// UpsertShift keys on business_date: one shift row per date, backed by
// the unique constraint on shifts.business_date. An unseen date inserts.
// A known date with the same shift id updates only the fields that can
// legitimately change while the shift stays open. A known date with a
// new shift id supersedes the stored row (a locally inferred shift being
// replaced by the upstream record); identity, opening time, and opening
// float come from the incoming record while recorded actual cash is
// carried forward.
func (s *Store) UpsertShift(ctx context.Context, shift domain.Shift) (bool, bool, error) {
	if strings.TrimSpace(shift.ID) == "" || strings.TrimSpace(shift.BusinessDate) == "" {
		return false, false, store.ErrInvalidRecord
	}

	var currentID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM shifts WHERE business_date = $1
	`, shift.BusinessDate).Scan(&currentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, false, err
	}

	if errors.Is(err, sql.ErrNoRows) {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO shifts (
				id, business_date, opened_at, closed_at, opening_cents,
				expected_cents, payouts_cents, actual_cents,
				total_sales_cents, receipt_count
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, shift.ID, shift.BusinessDate, shift.OpenedAt.UTC(), nullTime(shift.ClosedAt),
			shift.OpeningCents, shift.ExpectedCents, shift.PayoutsCents,
			nullInt64(shift.ActualCents), shift.TotalSalesCents, shift.ReceiptCount)
		if err == nil {
			return true, false, nil
		}
		if !isUniqueViolation(err) {
			return false, false, err
		}
		// Lost the race to a concurrent sync pass; re-read the winner
		// and fall through to the update paths.
		if err := s.db.QueryRowContext(ctx, `
			SELECT id FROM shifts WHERE business_date = $1
		`, shift.BusinessDate).Scan(&currentID); err != nil {
			return false, false, err
		}
	}

	if currentID != shift.ID {
		res, err := s.db.ExecContext(ctx, `
			UPDATE shifts
			SET id = $2,
				opened_at = $3,
				closed_at = COALESCE($4, closed_at),
				opening_cents = $5,
				expected_cents = $6,
				payouts_cents = $7,
				actual_cents = COALESCE($8, actual_cents),
				total_sales_cents = $9,
				receipt_count = $10
			WHERE business_date = $1
		`, shift.BusinessDate, shift.ID, shift.OpenedAt.UTC(), nullTime(shift.ClosedAt),
			shift.OpeningCents, shift.ExpectedCents, shift.PayoutsCents,
			nullInt64(shift.ActualCents), shift.TotalSalesCents, shift.ReceiptCount)
		if err != nil {
			return false, false, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, false, err
		}
		if affected == 0 {
			return false, false, store.ErrNotFound
		}
		return false, true, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts
		SET closed_at = COALESCE($2, closed_at),
			expected_cents = $3,
			payouts_cents = $4,
			actual_cents = COALESCE($5, actual_cents),
			total_sales_cents = $6,
			receipt_count = $7
		WHERE id = $1
	`, shift.ID, nullTime(shift.ClosedAt), shift.ExpectedCents, shift.PayoutsCents,
		nullInt64(shift.ActualCents), shift.TotalSalesCents, shift.ReceiptCount)
	if err != nil {
		return false, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, false, err
	}
	if affected == 0 {
		return false, false, store.ErrNotFound
	}
	return false, true, nil
}

func (s *Store) GetShiftByDate(ctx context.Context, businessDate string) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	var actual sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_date, opened_at, closed_at, opening_cents,
			expected_cents, payouts_cents, actual_cents, total_sales_cents, receipt_count
		FROM shifts
		WHERE business_date = $1
	`, businessDate).Scan(
		&shift.ID,
		&shift.BusinessDate,
		&shift.OpenedAt,
		&closedAt,
		&shift.OpeningCents,
		&shift.ExpectedCents,
		&shift.PayoutsCents,
		&actual,
		&shift.TotalSalesCents,
		&shift.ReceiptCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	normalizeShift(&shift, closedAt, actual)
	return &shift, nil
}

func (s *Store) ListLatestShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit < 1 {
		limit = 30
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_date, opened_at, closed_at, opening_cents,
			expected_cents, payouts_cents, actual_cents, total_sales_cents, receipt_count
		FROM shifts
		ORDER BY business_date DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, limit)
	for rows.Next() {
		var shift domain.Shift
		var closedAt sql.NullTime
		var actual sql.NullInt64
		if err := rows.Scan(&shift.ID, &shift.BusinessDate, &shift.OpenedAt, &closedAt,
			&shift.OpeningCents, &shift.ExpectedCents, &shift.PayoutsCents, &actual,
			&shift.TotalSalesCents, &shift.ReceiptCount); err != nil {
			return nil, err
		}
		normalizeShift(&shift, closedAt, actual)
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (s *Store) SetShiftActualCents(ctx context.Context, businessDate string, actualCents int64) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	var actual sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET actual_cents = $2
		WHERE business_date = $1
		RETURNING id, business_date, opened_at, closed_at, opening_cents,
			expected_cents, payouts_cents, actual_cents, total_sales_cents, receipt_count
	`, businessDate, actualCents).Scan(
		&shift.ID,
		&shift.BusinessDate,
		&shift.OpenedAt,
		&closedAt,
		&shift.OpeningCents,
		&shift.ExpectedCents,
		&shift.PayoutsCents,
		&actual,
		&shift.TotalSalesCents,
		&shift.ReceiptCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	normalizeShift(&shift, closedAt, actual)
	return &shift, nil
}

func (s *Store) SetShiftTotals(ctx context.Context, businessDate string, totalSalesCents int64, receiptCount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts
		SET total_sales_cents = $2, receipt_count = $3
		WHERE business_date = $1
	`, businessDate, totalSalesCents, receiptCount)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertItem(ctx context.Context, item domain.Item) error {
	if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Name) == "" {
		return store.ErrInvalidRecord
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, category, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category, updated_at = now()
	`, item.ID, item.Name, nullIfEmpty(item.Category))
	return err
}

func (s *Store) UpsertPaymentType(ctx context.Context, paymentType domain.PaymentType) error {
	if strings.TrimSpace(paymentType.ID) == "" {
		return store.ErrInvalidRecord
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_types (id, name, kind, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind, updated_at = now()
	`, paymentType.ID, paymentType.Name, paymentType.Kind)
	return err
}

func (s *Store) ListPaymentTypes(ctx context.Context) ([]domain.PaymentType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind FROM payment_types ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]domain.PaymentType, 0, 8)
	for rows.Next() {
		var paymentType domain.PaymentType
		if err := rows.Scan(&paymentType.ID, &paymentType.Name, &paymentType.Kind); err != nil {
			return nil, err
		}
		types = append(types, paymentType)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if strings.TrimSpace(user.Username) == "" || user.Password == "" {
		return store.ErrInvalidRecord
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalizeShift(shift *domain.Shift, closedAt sql.NullTime, actual sql.NullInt64) {
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	if actual.Valid {
		cents := actual.Int64
		shift.ActualCents = &cents
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIfEmptyBytes(val []byte) any {
	if len(val) == 0 {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
