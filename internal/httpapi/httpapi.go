package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/service"
	"shiftbook/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
	swept   time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop keys whose attempts have all aged out, at most once per
	// window, so quiet clients do not accumulate forever.
	if now.Sub(l.swept) >= l.window {
		for k, history := range l.entries {
			if k == key {
				continue
			}
			stale := true
			for _, ts := range history {
				if ts.After(cutoff) {
					stale = false
					break
				}
			}
			if stale {
				delete(l.entries, k)
			}
		}
		l.swept = now
	}

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/shifts", a.requireAuth(a.handleShifts, "viewer", "admin"))
	mux.HandleFunc("/api/v1/shifts/", a.requireAuth(a.handleShiftActions, "viewer", "admin"))
	mux.HandleFunc("/api/v1/receipts", a.requireAuth(a.handleReceipts, "viewer", "admin"))
	mux.HandleFunc("/api/v1/payment-types", a.requireAuth(a.handlePaymentTypes, "viewer", "admin"))

	mux.HandleFunc("/api/v1/sync", a.requireAuth(a.handleSync, "admin"))
	mux.HandleFunc("/api/v1/users/operators", a.requireAuth(a.handleOperators, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShifts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	shifts, err := a.service.GetLatestShifts(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
}

// handleShiftActions serves /api/v1/shifts/{date} and its sub-resources
// {date}/aggregate, {date}/balance, and {date}/actual-cash.
func (a *API) handleShiftActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/shifts/")
	date, action, _ := strings.Cut(strings.Trim(rest, "/"), "/")
	if date == "" {
		writeError(w, http.StatusBadRequest, errors.New("business date required"))
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		shift, err := a.service.GetShiftByDate(r.Context(), date)
		if err != nil {
			writeError(w, shiftErrStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, shift)

	case "aggregate":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		agg, err := a.service.GetShiftAggregate(r.Context(), date)
		if err != nil {
			writeError(w, shiftErrStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, agg)

	case "balance":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		analysis, err := a.service.GetShiftBalance(r.Context(), date)
		if err != nil {
			writeError(w, shiftErrStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, analysis)

	case "actual-cash":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		actor, _ := service.ActorFromContext(r.Context())
		if actor.Role != "admin" {
			writeError(w, http.StatusForbidden, errors.New("admin role required"))
			return
		}
		var req domain.ActualCashRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		analysis, err := a.service.RecordActualCash(r.Context(), date, req)
		if err != nil {
			writeError(w, shiftErrStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, analysis)

	default:
		writeError(w, http.StatusNotFound, errors.New("unknown shift resource"))
	}
}

func (a *API) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	from, err := time.Parse(time.RFC3339, query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("from must be RFC3339"))
		return
	}
	to, err := time.Parse(time.RFC3339, query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("to must be RFC3339"))
		return
	}

	receipts, err := a.service.GetReceiptsInRange(r.Context(), from, to)
	if err != nil {
		writeError(w, shiftErrStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts, "count": len(receipts)})
}

func (a *API) handlePaymentTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	types, err := a.service.ListPaymentTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_types": types})
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	// An empty body means "incremental sync over the default window".
	var req domain.TriggerSyncRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.TriggerSync(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrInvalidRecord) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		// The pass itself failed; the result still describes what
		// happened, so return it alongside the error status.
		writeJSON(w, http.StatusBadGateway, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleOperators(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"operators": a.auth.ListOperators()})
	case http.MethodPost:
		var req domain.OperatorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		operator, err := a.auth.CreateOperator(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"operator": operator})
	default:
		writeMethodNotAllowed(w)
	}
}

func shiftErrStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case strings.Contains(err.Error(), "role required"):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses return a generic message so internal details never
	// reach the client; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
