package service_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokopos/internal/domain"
	"tokopos/internal/service"
	"tokopos/internal/store"
	"tokopos/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.SaleCompletedEvent
	fail   bool
}

func (p *capturingPublisher) PublishSaleCompleted(_ context.Context, event domain.SaleCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, event)
	return nil
}

type cannedCache struct {
	stored map[string]*domain.SalesReport
	sets   int
}

func (c *cannedCache) Get(_ context.Context, key string) (*domain.SalesReport, bool, error) {
	report, ok := c.stored[key]
	return report, ok, nil
}

func (c *cannedCache) Set(_ context.Context, key string, value *domain.SalesReport, _ time.Duration) error {
	if c.stored == nil {
		c.stored = make(map[string]*domain.SalesReport)
	}
	c.stored[key] = value
	c.sets++
	return nil
}

type fixture struct {
	svc       *service.Service
	repo      *memory.Store
	publisher *capturingPublisher
	cache     *cannedCache
	products  []int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	category, err := repo.CreateCategory(ctx, domain.Category{Name: "grocery"})
	require.NoError(t, err)

	ids := make([]int64, 0, 2)
	for _, seed := range []struct {
		name  string
		price string
		stock int
	}{
		{"Kopi Sachet", "10000", 20},
		{"Gula 1kg", "5000", 5},
	} {
		created, err := repo.CreateProduct(ctx, domain.Product{
			Name:       seed.name,
			CategoryID: category.ID,
			Price:      dec(seed.price),
		}, seed.stock)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	publisher := &capturingPublisher{}
	reportCache := &cannedCache{}
	svc := service.New(repo, reportCache, publisher, zap.NewNop(), time.Second)
	return &fixture{svc: svc, repo: repo, publisher: publisher, cache: reportCache, products: ids}
}

func cashierCtx(userID int64) context.Context {
	return service.WithActor(context.Background(), domain.Actor{
		UserID: userID, Username: "kasir", Role: domain.RoleCashier,
	})
}

func adminCtx(userID int64) context.Context {
	return service.WithActor(context.Background(), domain.Actor{
		UserID: userID, Username: "admin", Role: domain.RoleAdmin,
	})
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items: []domain.CartLine{
			{ProductID: f.products[0], Quantity: 2, Price: dec("10000")},
			{ProductID: f.products[1], Quantity: 1, Price: dec("5000")},
		},
		PaymentMethod: domain.PaymentCash,
		TotalPrice:    dec("25000"),
	})
	require.NoError(t, err)

	assert.True(t, resp.Total.Equal(dec("25000")), "total %s", resp.Total)
	assert.Equal(t, domain.PaymentCash, resp.PaymentMethod)
	assert.NotEmpty(t, resp.ReceiptNumber)
	require.Len(t, resp.LineItems, 2)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, resp.TransactionID, event.TransactionID)
	assert.Equal(t, resp.ReceiptNumber, event.ReceiptNumber)
	assert.EqualValues(t, 3, event.UserID)
	assert.Equal(t, "25000", event.Total)
	assert.Equal(t, 2, event.LineCount)
}

func TestCheckoutStaleClientTotalStillCommits(t *testing.T) {
	f := newFixture(t)

	// The client saw an old price; the server-side total wins.
	resp, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 1, Price: dec("9000")}},
		PaymentMethod: domain.PaymentCard,
		TotalPrice:    dec("9000"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Total.Equal(dec("10000")))
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx(3)

	cases := []struct {
		name string
		req  domain.CheckoutRequest
	}{
		{"empty cart", domain.CheckoutRequest{PaymentMethod: domain.PaymentCash}},
		{"unknown payment method", domain.CheckoutRequest{
			Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 1}},
			PaymentMethod: "bitcoin",
		}},
		{"zero quantity", domain.CheckoutRequest{
			Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 0}},
			PaymentMethod: domain.PaymentCash,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Checkout(ctx, tc.req)
			require.ErrorIs(t, err, store.ErrInvalidInput)
		})
	}

	assert.Empty(t, f.publisher.events, "no event may be published for a rejected checkout")
}

func TestCheckoutAcceptsDuplicateLines(t *testing.T) {
	f := newFixture(t)

	// A product scanned twice arrives as two lines; the sale commits
	// once with the summed quantity.
	resp, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items: []domain.CartLine{
			{ProductID: f.products[0], Quantity: 1},
			{ProductID: f.products[0], Quantity: 2},
		},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	require.Len(t, resp.LineItems, 1)
	assert.Equal(t, 3, resp.LineItems[0].Quantity)
	assert.True(t, resp.Total.Equal(dec("30000")))

	// Summed quantity past the stock on hand still fails atomically.
	_, err = f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items: []domain.CartLine{
			{ProductID: f.products[1], Quantity: 3},
			{ProductID: f.products[1], Quantity: 3},
		},
		PaymentMethod: domain.PaymentCash,
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[1], Quantity: 6}},
		PaymentMethod: domain.PaymentCash,
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Empty(t, f.publisher.events)
}

func TestCheckoutRequiresActor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.Error(t, err)
}

func TestCheckoutSurvivesPublisherFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.fail = true

	resp, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err, "a broker outage must not fail a committed sale")
	assert.NotZero(t, resp.TransactionID)
}

func TestSubtotalsImmutableAfterPriceChange(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 2}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	newPrice := dec("12000")
	_, err = f.svc.UpdateProduct(adminCtx(1), f.products[0], domain.ProductUpdateRequest{Price: &newPrice})
	require.NoError(t, err)

	tx, err := f.svc.GetTransaction(adminCtx(1), resp.TransactionID)
	require.NoError(t, err)
	require.Len(t, tx.Details, 1)
	assert.True(t, tx.Details[0].UnitPrice.Equal(dec("10000")), "historical unit price must not move")
	assert.True(t, tx.Details[0].Subtotal.Equal(dec("20000")))
	assert.True(t, tx.TotalPrice.Equal(dec("20000")))

	// A new sale picks up the new price.
	again, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	assert.True(t, again.Total.Equal(dec("12000")))
}

func TestGetTransactionOwnership(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	_, err = f.svc.GetTransaction(cashierCtx(4), resp.TransactionID)
	require.ErrorIs(t, err, store.ErrNotFound, "another cashier must not see the sale")

	tx, err := f.svc.GetTransaction(adminCtx(1), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, resp.TransactionID, tx.ID)
}

func TestGenerateReportValidation(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx(1)

	_, err := f.svc.GenerateReport(ctx, "2026-13-01", "2026-01-02")
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = f.svc.GenerateReport(ctx, "2026-01-02", "2026-01-01")
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestGenerateReportIncludesFullEndDate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	report, err := f.svc.GenerateReport(adminCtx(1), today, today)
	require.NoError(t, err)

	assert.EqualValues(t, 1, report.TotalTransactionCount)
	assert.True(t, report.TotalSales.Equal(dec("10000")))
	assert.Equal(t, today, report.StartDate)
	assert.Equal(t, today, report.EndDate)
}

func TestGenerateReportServedFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx(1)

	first, err := f.svc.GenerateReport(ctx, "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.sets)

	// Mutate state; the second call inside the TTL must serve the
	// cached aggregate, not re-run it.
	_, err = f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	second, err := f.svc.GenerateReport(ctx, "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, first.TotalTransactionCount, second.TotalTransactionCount)
	assert.Equal(t, 1, f.cache.sets, "cache hit must not rewrite the entry")
}

func TestGenerateReportXLSX(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(cashierCtx(3), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: f.products[0], Quantity: 2}},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	var buf bytes.Buffer
	filename, err := f.svc.GenerateReportXLSX(adminCtx(1), today, today, &buf)
	require.NoError(t, err)

	assert.Equal(t, "sales-report-"+today+"-to-"+today+".xlsx", filename)
	assert.Greater(t, buf.Len(), 0)
}

func TestRecordStockChangeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx(1)

	_, err := f.svc.RecordStockChange(ctx, f.products[0], domain.StockChangeRequest{Delta: 0, Reason: domain.StockReasonRestock})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = f.svc.RecordStockChange(ctx, f.products[0], domain.StockChangeRequest{Delta: -1, Reason: domain.StockReasonSale})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	entry, err := f.svc.RecordStockChange(ctx, f.products[0], domain.StockChangeRequest{Delta: 15, Reason: domain.StockReasonRestock})
	require.NoError(t, err)
	assert.Equal(t, 15, entry.QuantityChanged)

	product, err := f.svc.GetProduct(ctx, f.products[0])
	require.NoError(t, err)
	assert.Equal(t, 35, product.StockQuantity)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx(1)

	_, err := f.svc.CreateUser(ctx, domain.UserCreateRequest{Username: "x", Password: "short", Role: domain.RoleCashier})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = f.svc.CreateUser(ctx, domain.UserCreateRequest{Username: "budi", Password: "secret123", Role: "owner"})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	created, err := f.svc.CreateUser(ctx, domain.UserCreateRequest{Username: "budi", Password: "secret123", Role: domain.RoleCashier})
	require.NoError(t, err)
	assert.Equal(t, "budi", created.Username)
	assert.Equal(t, domain.RoleCashier, created.Role)

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestProductLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx(1)

	created, err := f.svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Teh Celup", CategoryID: 1, Price: dec("9800"), StockQuantity: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, created.StockQuantity)

	// Opening stock lands in the ledger as an initial entry.
	entries, err := f.svc.ProductLedger(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StockReasonInitial, entries[0].Reason)
	assert.Equal(t, 30, entries[0].QuantityChanged)

	require.NoError(t, f.svc.DeleteProduct(ctx, created.ID))
	_, err = f.svc.GetProduct(ctx, created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
