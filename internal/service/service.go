// Package service holds the business rules between the HTTP layer and
// the store: cart validation, advisory-price reconciliation, report
// date handling and caching, and the post-checkout event publish.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tokopos/internal/broker"
	"tokopos/internal/cache"
	"tokopos/internal/domain"
	"tokopos/internal/metrics"
	"tokopos/internal/report"
	"tokopos/internal/store"
)

const dateLayout = "2006-01-02"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	reports        cache.ReportCache
	publisher      broker.Publisher
	logger         *zap.Logger
	reportCacheTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, publisher broker.Publisher, logger *zap.Logger, reportCacheTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if publisher == nil {
		publisher = broker.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:           repo,
		reports:        reports,
		publisher:      publisher,
		logger:         logger,
		reportCacheTTL: reportCacheTTL,
	}
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name is required: %w", store.ErrInvalidInput)
	}
	return s.repo.CreateCategory(ctx, domain.Category{Name: name})
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.CategoryID < 1 {
		return nil, fmt.Errorf("product name and category are required: %w", store.ErrInvalidInput)
	}
	if req.Price.IsNegative() || req.StockQuantity < 0 {
		return nil, fmt.Errorf("price and stock must not be negative: %w", store.ErrInvalidInput)
	}

	product := domain.Product{
		Name:       req.Name,
		CategoryID: req.CategoryID,
		Price:      req.Price,
		PhotoURL:   strings.TrimSpace(req.PhotoURL),
	}
	return s.repo.CreateProduct(ctx, product, req.StockQuantity)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (*domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.CategoryID != nil {
		existing.CategoryID = *req.CategoryID
	}
	if req.Price != nil {
		existing.Price = *req.Price
	}
	if req.PhotoURL != nil {
		existing.PhotoURL = strings.TrimSpace(*req.PhotoURL)
	}
	if existing.Name == "" || existing.CategoryID < 1 || existing.Price.IsNegative() {
		return nil, fmt.Errorf("invalid product update: %w", store.ErrInvalidInput)
	}

	return s.repo.UpdateProduct(ctx, *existing)
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteProduct(ctx, id, time.Now().UTC())
}

// Checkout validates the cart and hands it to the store's atomic
// checkout. Client-side prices and total are advisory only; a mismatch
// is logged but the server-computed total always wins.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no authenticated actor in context")
	}

	if len(req.Items) == 0 {
		metrics.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, fmt.Errorf("cart is empty: %w", store.ErrInvalidInput)
	}
	if !domain.IsPaymentMethod(req.PaymentMethod) {
		metrics.CheckoutsFailedTotal.WithLabelValues("bad_payment_method").Inc()
		return nil, fmt.Errorf("unknown payment method %q: %w", req.PaymentMethod, store.ErrInvalidInput)
	}
	// Duplicate lines for one product are legal; the store merges them
	// and checks stock against the summed quantity.
	for _, line := range req.Items {
		if line.ProductID < 1 || line.Quantity < 1 {
			metrics.CheckoutsFailedTotal.WithLabelValues("bad_line").Inc()
			return nil, fmt.Errorf("each cart line needs a product id and quantity >= 1: %w", store.ErrInvalidInput)
		}
	}

	tx, err := s.repo.CreateCheckout(ctx, store.CheckoutOrder{
		UserID:        actor.UserID,
		PaymentMethod: req.PaymentMethod,
		Lines:         req.Items,
	})
	if err != nil {
		metrics.CheckoutsFailedTotal.WithLabelValues(checkoutFailureReason(err)).Inc()
		return nil, err
	}

	if !req.TotalPrice.IsZero() && !req.TotalPrice.Equal(tx.TotalPrice) {
		s.logger.Warn("client total disagrees with server total",
			zap.Int64("transaction_id", tx.ID),
			zap.String("client_total", req.TotalPrice.String()),
			zap.String("server_total", tx.TotalPrice.String()))
	}

	units := 0
	for _, d := range tx.Details {
		units += d.Quantity
	}
	metrics.CheckoutsCompletedTotal.Inc()
	metrics.SaleUnitsTotal.Add(float64(units))

	event := domain.SaleCompletedEvent{
		TransactionID: tx.ID,
		ReceiptNumber: tx.Receipt.ReceiptNumber,
		UserID:        tx.UserID,
		PaymentMethod: tx.PaymentMethod,
		Total:         tx.TotalPrice.String(),
		LineCount:     len(tx.Details),
		OccurredAt:    tx.TransactionDate,
	}
	if err := s.publisher.PublishSaleCompleted(ctx, event); err != nil {
		// The sale is already committed; losing the event must not fail it.
		s.logger.Warn("sale event publish failed",
			zap.Int64("transaction_id", tx.ID),
			zap.Error(err))
	}

	return &domain.CheckoutResponse{
		TransactionID:   tx.ID,
		ReceiptNumber:   tx.Receipt.ReceiptNumber,
		PaymentMethod:   tx.PaymentMethod,
		LineItems:       tx.Details,
		Total:           tx.TotalPrice,
		TransactionDate: tx.TransactionDate,
	}, nil
}

func checkoutFailureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrNotFound):
		return "unknown_product"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_input"
	default:
		return "store_error"
	}
}

// ListTransactions returns the calling cashier's own transactions,
// optionally restricted to a single day ("2006-01-02").
func (s *Service) ListTransactions(ctx context.Context, date string) ([]domain.Transaction, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no authenticated actor in context")
	}

	var day *time.Time
	if date != "" {
		parsed, err := time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", store.ErrInvalidInput)
		}
		day = &parsed
	}

	return s.repo.ListTransactions(ctx, actor.UserID, day)
}

// GetTransaction returns one transaction with its line items and
// receipt. Cashiers may only read their own; admins may read any.
func (s *Service) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no authenticated actor in context")
	}

	tx, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && tx.UserID != actor.UserID {
		return nil, store.ErrNotFound
	}
	return tx, nil
}

// RecordStockChange applies a manual restock or adjustment and appends
// the matching ledger entry. Sales never go through here.
func (s *Service) RecordStockChange(ctx context.Context, productID int64, req domain.StockChangeRequest) (*domain.InventoryEntry, error) {
	if req.Delta == 0 {
		return nil, fmt.Errorf("delta must be non-zero: %w", store.ErrInvalidInput)
	}
	if req.Reason != domain.StockReasonRestock && req.Reason != domain.StockReasonAdjustment {
		return nil, fmt.Errorf("reason must be %q or %q: %w", domain.StockReasonRestock, domain.StockReasonAdjustment, store.ErrInvalidInput)
	}
	return s.repo.AdjustStock(ctx, productID, req.Delta, req.Reason)
}

func (s *Service) ProductLedger(ctx context.Context, productID int64) ([]domain.InventoryEntry, error) {
	return s.repo.ListInventoryEntries(ctx, productID)
}

// GenerateReport aggregates sales over the inclusive [start, end] date
// range. Results are cached briefly keyed by the range.
func (s *Service) GenerateReport(ctx context.Context, start, end string) (*domain.SalesReport, error) {
	from, to, err := parseReportRange(start, end)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("report:%s:%s", start, end)
	if cached, hit, err := s.reports.Get(ctx, key); err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return cached, nil
	}

	result, err := s.repo.GetSalesReport(ctx, from, to)
	if err != nil {
		return nil, err
	}
	result.StartDate = start
	result.EndDate = end
	metrics.ReportsGeneratedTotal.WithLabelValues("json").Inc()

	if err := s.reports.Set(ctx, key, &result, s.reportCacheTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return &result, nil
}

// GenerateReportXLSX writes the report workbook for the same range to w
// and returns a download filename.
func (s *Service) GenerateReportXLSX(ctx context.Context, start, end string, w io.Writer) (string, error) {
	from, to, err := parseReportRange(start, end)
	if err != nil {
		return "", err
	}

	result, err := s.repo.GetSalesReport(ctx, from, to)
	if err != nil {
		return "", err
	}
	result.StartDate = start
	result.EndDate = end

	transactions, err := s.repo.ListTransactionsRange(ctx, from, to)
	if err != nil {
		return "", err
	}

	if err := report.WriteXLSX(w, result, transactions); err != nil {
		return "", err
	}
	metrics.ReportsGeneratedTotal.WithLabelValues("xlsx").Inc()

	return fmt.Sprintf("sales-report-%s-to-%s.xlsx", start, end), nil
}

// parseReportRange turns inclusive calendar dates into a half-open UTC
// window: the end date counts through its last instant.
func parseReportRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(dateLayout, start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start date must be YYYY-MM-DD: %w", store.ErrInvalidInput)
	}
	endDay, err := time.ParseInLocation(dateLayout, end, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be YYYY-MM-DD: %w", store.ErrInvalidInput)
	}
	if endDay.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date is before start date: %w", store.ErrInvalidInput)
	}
	return from, endDay.Add(24 * time.Hour), nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	return s.repo.GetDashboardStats(ctx)
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (*domain.UserView, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 6 {
		return nil, fmt.Errorf("username and a password of at least 6 characters are required: %w", store.ErrInvalidInput)
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleCashier {
		return nil, fmt.Errorf("role must be %q or %q: %w", domain.RoleAdmin, domain.RoleCashier, store.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         req.Role,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return &domain.UserView{
		ID:        created.ID,
		Username:  created.Username,
		Role:      created.Role,
		CreatedAt: created.CreatedAt,
	}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, domain.UserView{
			ID:        a.ID,
			Username:  a.Username,
			Role:      a.Role,
			CreatedAt: a.CreatedAt,
		})
	}
	return views, nil
}
