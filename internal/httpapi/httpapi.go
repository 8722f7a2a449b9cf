// Package httpapi exposes the service over JSON HTTP. Routing sticks to
// net/http with per-handler method checks; auth is a bearer token
// parsed into an Actor and attached to the request context.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tokopos/internal/domain"
	"tokopos/internal/ident"
	"tokopos/internal/metrics"
	"tokopos/internal/service"
	"tokopos/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, domain.RoleCashier, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/checkout", a.requireAuth(a.handleCheckout, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleTransactions, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/transactions/", a.requireAuth(a.handleTransactionByID, domain.RoleCashier, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/reports/sales", a.requireAuth(a.handleSalesReport, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/dashboard/stats", a.requireAuth(a.handleDashboardStats, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
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

// requireAdmin guards mutating branches on routes cashiers may read.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok || actor.Role != domain.RoleAdmin {
		a.writeError(w, http.StatusForbidden, errors.New("admin role required"))
		return false
	}
	return true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req domain.Category
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateCategory(r.Context(), req.Name)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"category": created})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": created})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// handleProductActions routes /api/v1/products/{id}, plus the ledger
// and stock subresources.
func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	idPart, sub, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id < 1 {
		a.writeError(w, http.StatusBadRequest, errors.New("invalid product id"))
		return
	}

	switch sub {
	case "":
		a.handleProductByID(w, r, id)
	case "ledger":
		if r.Method != http.MethodGet {
			a.writeMethodNotAllowed(w)
			return
		}
		if !a.requireAdmin(w, r) {
			return
		}
		entries, err := a.service.ProductLedger(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	case "stock":
		if r.Method != http.MethodPost {
			a.writeMethodNotAllowed(w)
			return
		}
		if !a.requireAdmin(w, r) {
			return
		}
		var req domain.StockChangeRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		entry, err := a.service.RecordStockChange(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"entry": entry})
	default:
		a.writeError(w, http.StatusNotFound, errors.New("unknown product resource"))
	}
}

func (a *API) handleProductByID(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPut, http.MethodPatch:
		if !a.requireAdmin(w, r) {
			return
		}
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": updated})
	case http.MethodDelete:
		if !a.requireAdmin(w, r) {
			return
		}
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		// An unknown product in the cart is a bad request, not a missing
		// resource: the checkout endpoint itself was found.
		if errors.Is(err, store.ErrNotFound) {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	transactions, err := a.service.ListTransactions(r.Context(), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (a *API) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	idPart := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id < 1 {
		a.writeError(w, http.StatusBadRequest, errors.New("invalid transaction id"))
		return
	}

	tx, err := a.service.GetTransaction(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	start := strings.TrimSpace(query.Get("start"))
	end := strings.TrimSpace(query.Get("end"))
	if start == "" || end == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("start and end query parameters are required"))
		return
	}

	if query.Get("download") == "true" {
		// Render to a buffer first so a failure can still produce a
		// JSON error instead of a truncated attachment.
		var buf bytes.Buffer
		filename, err := a.service.GenerateReportXLSX(r.Context(), start, end, &buf)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		_, _ = w.Write(buf.Bytes())
		return
	}

	reportData, err := a.service.GenerateReport(r.Context(), start, end)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportData)
}

func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	stats, err := a.service.DashboardStats(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.service.ListUsers(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateUser(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": created})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = ident.New("req")
		}
		w.Header().Set("X-Request-ID", requestID)

		startedAt := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(startedAt)

		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, normalizePath(r.URL.Path), strconv.Itoa(recorder.status)).
			Observe(elapsed.Seconds())
		a.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("elapsed", elapsed))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// normalizePath collapses numeric path segments so the metrics label
// set stays bounded.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if _, err := strconv.ParseInt(segment, 10, 64); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
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

// writeServiceError maps store sentinel errors onto HTTP statuses.
// Stock shortfalls and lost concurrency races both come back as 409:
// the client should refresh and retry rather than blame its input.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		a.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrInsufficientStock):
		a.writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrConflict):
		a.writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// 5xx responses get a generic body so store and SQL details never leak
// to clients; the original error goes to the log instead.
func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
