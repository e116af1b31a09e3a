package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	receiptsByID    map[string]domain.Receipt
	shiftsByID      map[string]domain.Shift
	shiftsByDate    map[string]string
	itemsByID       map[string]domain.Item
	paymentTypes    map[string]domain.PaymentType
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory operator accounts for dev/demo
// mode. Credentials are read from SEED_ADMIN_PASSWORD and
// SEED_VIEWER_PASSWORD environment variables. If unset, hardcoded dev
// defaults are used with a warning printed to stdout. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	viewerPwd := envOr("SEED_VIEWER_PASSWORD", "viewer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_VIEWER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_VIEWER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"viewer", viewerPwd, "viewer"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	return &Store{
		receiptsByID:    make(map[string]domain.Receipt),
		shiftsByID:      make(map[string]domain.Shift),
		shiftsByDate:    make(map[string]string),
		itemsByID:       make(map[string]domain.Item),
		paymentTypes:    make(map[string]domain.PaymentType),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) InsertReceipt(_ context.Context, receipt domain.Receipt) (bool, error) {
	if strings.TrimSpace(receipt.ID) == "" {
		return false, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.receiptsByID[receipt.ID]; exists {
		return false, nil
	}
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	s.receiptsByID[receipt.ID] = cloneReceipt(receipt)
	return true, nil
}

func (s *Store) GetReceiptByID(_ context.Context, id string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, exists := s.receiptsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneReceipt(receipt)
	return &found, nil
}

func (s *Store) ListReceiptsBetween(_ context.Context, start, end time.Time) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Receipt, 0, 64)
	for _, receipt := range s.receiptsByID {
		if receipt.CreatedAt.Before(start) || !receipt.CreatedAt.Before(end) {
			continue
		}
		result = append(result, cloneReceipt(receipt))
	}

	slices.SortFunc(result, func(a, b domain.Receipt) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CountReceiptsBetween(_ context.Context, start, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := int64(0)
	for _, receipt := range s.receiptsByID {
		if receipt.CreatedAt.Before(start) || !receipt.CreatedAt.Before(end) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) UpsertShift(_ context.Context, shift domain.Shift) (bool, bool, error) {
	if strings.TrimSpace(shift.ID) == "" || strings.TrimSpace(shift.BusinessDate) == "" {
		return false, false, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentID, dateKnown := s.shiftsByDate[shift.BusinessDate]
	if !dateKnown {
		shift.OpenedAt = shift.OpenedAt.UTC()
		s.shiftsByID[shift.ID] = cloneShift(shift)
		s.shiftsByDate[shift.BusinessDate] = shift.ID
		return true, false, nil
	}

	existing := s.shiftsByID[currentID]
	if currentID != shift.ID {
		// A record with a new identity supersedes the row for this
		// business date. Recorded actual cash survives the swap.
		replacement := cloneShift(shift)
		replacement.OpenedAt = shift.OpenedAt.UTC()
		if replacement.ClosedAt != nil {
			replacement.ClosedAt = timePtr(replacement.ClosedAt.UTC())
		}
		if replacement.ClosedAt == nil && existing.ClosedAt != nil {
			replacement.ClosedAt = timePtr(*existing.ClosedAt)
		}
		if replacement.ActualCents == nil && existing.ActualCents != nil {
			replacement.ActualCents = int64Ptr(*existing.ActualCents)
		}
		delete(s.shiftsByID, currentID)
		s.shiftsByID[shift.ID] = replacement
		s.shiftsByDate[shift.BusinessDate] = shift.ID
		return false, true, nil
	}

	// Only the mutable subset is taken from the incoming record; the
	// identity, opening time, and opening float stay as first seen.
	if shift.ClosedAt != nil {
		existing.ClosedAt = timePtr(shift.ClosedAt.UTC())
	}
	existing.ExpectedCents = shift.ExpectedCents
	existing.PayoutsCents = shift.PayoutsCents
	if shift.ActualCents != nil {
		existing.ActualCents = int64Ptr(*shift.ActualCents)
	}
	existing.TotalSalesCents = shift.TotalSalesCents
	existing.ReceiptCount = shift.ReceiptCount
	s.shiftsByID[shift.ID] = existing
	return false, true, nil
}

func (s *Store) GetShiftByDate(_ context.Context, businessDate string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.shiftsByDate[businessDate]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneShift(shift)
	return &found, nil
}

func (s *Store) ListLatestShifts(_ context.Context, limit int) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 30
	}

	shifts := make([]domain.Shift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		shifts = append(shifts, cloneShift(shift))
	}
	slices.SortFunc(shifts, func(a, b domain.Shift) int {
		return cmpString(b.BusinessDate, a.BusinessDate)
	})
	if len(shifts) > limit {
		shifts = shifts[:limit]
	}
	return shifts, nil
}

func (s *Store) SetShiftActualCents(_ context.Context, businessDate string, actualCents int64) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shiftID, exists := s.shiftsByDate[businessDate]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[shiftID]
	shift.ActualCents = int64Ptr(actualCents)
	s.shiftsByID[shiftID] = shift
	updated := cloneShift(shift)
	return &updated, nil
}

func (s *Store) SetShiftTotals(_ context.Context, businessDate string, totalSalesCents int64, receiptCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shiftID, exists := s.shiftsByDate[businessDate]
	if !exists {
		return store.ErrNotFound
	}
	shift := s.shiftsByID[shiftID]
	shift.TotalSalesCents = totalSalesCents
	shift.ReceiptCount = receiptCount
	s.shiftsByID[shiftID] = shift
	return nil
}

func (s *Store) UpsertItem(_ context.Context, item domain.Item) error {
	if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Name) == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.itemsByID[item.ID] = item
	return nil
}

func (s *Store) UpsertPaymentType(_ context.Context, paymentType domain.PaymentType) error {
	if strings.TrimSpace(paymentType.ID) == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.paymentTypes[paymentType.ID] = paymentType
	return nil
}

func (s *Store) ListPaymentTypes(_ context.Context) ([]domain.PaymentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]domain.PaymentType, 0, len(s.paymentTypes))
	for _, paymentType := range s.paymentTypes {
		types = append(types, paymentType)
	}
	slices.SortFunc(types, func(a, b domain.PaymentType) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return types, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidRecord
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "viewer"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneReceipt(src domain.Receipt) domain.Receipt {
	dup := src
	items := make([]domain.LineItem, len(src.Items))
	copy(items, src.Items)
	for i := range items {
		modifiers := make([]domain.Modifier, len(src.Items[i].Modifiers))
		copy(modifiers, src.Items[i].Modifiers)
		items[i].Modifiers = modifiers
	}
	dup.Items = items
	if len(src.Raw) > 0 {
		raw := make([]byte, len(src.Raw))
		copy(raw, src.Raw)
		dup.Raw = raw
	}
	return dup
}

func cloneShift(src domain.Shift) domain.Shift {
	dup := src
	if src.ClosedAt != nil {
		dup.ClosedAt = timePtr(*src.ClosedAt)
	}
	if src.ActualCents != nil {
		dup.ActualCents = int64Ptr(*src.ActualCents)
	}
	return dup
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func int64Ptr(v int64) *int64 {
	return &v
}
