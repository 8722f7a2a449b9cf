package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokopos/internal/domain"
	"tokopos/internal/store"
)

// newIntegrationStore skips unless TOKOPOS_TEST_DATABASE_URL points at a
// database with schema.sql applied.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("TOKOPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOPOS_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type integrationFixture struct {
	store      *Store
	userID     int64
	productIDs []int64
}

// seedIntegration creates a salted user, category and products through
// the store's own methods, and registers FK-ordered cleanup deletes.
func seedIntegration(t *testing.T, s *Store, stocks ...int) *integrationFixture {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	user, err := s.CreateUser(ctx, domain.UserAccount{
		Username:     fmt.Sprintf("kasir-it-%d", stamp),
		PasswordHash: "$2a$04$integrationtesthashxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx",
		Role:         domain.RoleCashier,
	})
	require.NoError(t, err)

	category, err := s.CreateCategory(ctx, domain.Category{Name: fmt.Sprintf("it-%d", stamp)})
	require.NoError(t, err)

	productIDs := make([]int64, 0, len(stocks))
	for i, stock := range stocks {
		product, err := s.CreateProduct(ctx, domain.Product{
			Name:       fmt.Sprintf("Produk IT %d-%d", stamp, i),
			CategoryID: category.ID,
			Price:      decimal.NewFromInt(int64(10000 * (i + 1))),
		}, stock)
		require.NoError(t, err)
		productIDs = append(productIDs, product.ID)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM receipts WHERE transaction_id IN (SELECT id FROM transactions WHERE user_id = $1)`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_entries WHERE product_id = ANY($1)`, productIDs)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_details WHERE transaction_id IN (SELECT id FROM transactions WHERE user_id = $1)`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = $1`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ANY($1)`, productIDs)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, category.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
	})

	return &integrationFixture{store: s, userID: user.ID, productIDs: productIDs}
}

func TestCheckoutAtomicityIntegration(t *testing.T) {
	s := newIntegrationStore(t)
	f := seedIntegration(t, s, 10, 1)
	ctx := context.Background()

	// A cart with one short line must leave no trace of the good line.
	_, err := s.CreateCheckout(ctx, store.CheckoutOrder{
		UserID:        f.userID,
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: f.productIDs[0], Quantity: 2},
			{ProductID: f.productIDs[1], Quantity: 3},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	first, err := s.GetProductByID(ctx, f.productIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 10, first.StockQuantity, "rolled-back checkout must not decrement")

	var txCount int
	require.NoError(t, s.db.GetContext(ctx, &txCount, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, f.userID))
	assert.Equal(t, 0, txCount)

	var saleEntries int
	require.NoError(t, s.db.GetContext(ctx, &saleEntries,
		`SELECT COUNT(*) FROM inventory_entries WHERE product_id = ANY($1) AND reason = $2`,
		f.productIDs, domain.StockReasonSale))
	assert.Equal(t, 0, saleEntries)

	// The same cart sized to stock commits everything at once.
	tx, err := s.CreateCheckout(ctx, store.CheckoutOrder{
		UserID:        f.userID,
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: f.productIDs[0], Quantity: 2},
			{ProductID: f.productIDs[1], Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, tx.Details, 2)
	require.NotNil(t, tx.Receipt)
	assert.True(t, tx.TotalPrice.Equal(decimal.NewFromInt(40000)), "total %s", tx.TotalPrice)

	first, err = s.GetProductByID(ctx, f.productIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 8, first.StockQuantity)
	second, err := s.GetProductByID(ctx, f.productIDs[1])
	require.NoError(t, err)
	assert.Equal(t, 0, second.StockQuantity)

	require.NoError(t, s.db.GetContext(ctx, &saleEntries,
		`SELECT COUNT(*) FROM inventory_entries WHERE transaction_id = $1 AND reason = $2`,
		tx.ID, domain.StockReasonSale))
	assert.Equal(t, 2, saleEntries)

	var receiptCount int
	require.NoError(t, s.db.GetContext(ctx, &receiptCount, `SELECT COUNT(*) FROM receipts WHERE transaction_id = $1`, tx.ID))
	assert.Equal(t, 1, receiptCount)
}

func TestCheckoutConcurrentStockRaceIntegration(t *testing.T) {
	s := newIntegrationStore(t)
	f := seedIntegration(t, s, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateCheckout(ctx, store.CheckoutOrder{
				UserID:        f.userID,
				PaymentMethod: domain.PaymentCash,
				Lines:         []domain.CartLine{{ProductID: f.productIDs[0], Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// The loser fails the stock check or loses the serialization race.
		assert.True(t,
			errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrConflict),
			"unexpected loser error: %v", err)
	}
	assert.Equal(t, 1, succeeded, "exactly one of two racing checkouts must commit")

	product, err := s.GetProductByID(ctx, f.productIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 0, product.StockQuantity)
}

func TestCheckoutDuplicateLinesIntegration(t *testing.T) {
	s := newIntegrationStore(t)
	f := seedIntegration(t, s, 3)
	ctx := context.Background()

	_, err := s.CreateCheckout(ctx, store.CheckoutOrder{
		UserID:        f.userID,
		PaymentMethod: domain.PaymentCash,
		Lines: []domain.CartLine{
			{ProductID: f.productIDs[0], Quantity: 2},
			{ProductID: f.productIDs[0], Quantity: 2},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	product, err := s.GetProductByID(ctx, f.productIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 3, product.StockQuantity)
}

func TestSalesReportIntegration(t *testing.T) {
	s := newIntegrationStore(t)
	f := seedIntegration(t, s, 50, 50)
	ctx := context.Background()

	_, err := s.CreateCheckout(ctx, store.CheckoutOrder{
		UserID:        f.userID,
		PaymentMethod: domain.PaymentCash,
		Lines:         []domain.CartLine{{ProductID: f.productIDs[0], Quantity: 2}},
	})
	require.NoError(t, err)
	_, err = s.CreateCheckout(ctx, store.CheckoutOrder{
		UserID:        f.userID,
		PaymentMethod: domain.PaymentCard,
		Lines:         []domain.CartLine{{ProductID: f.productIDs[1], Quantity: 1}},
	})
	require.NoError(t, err)

	// The fixture is salted but the database is shared, so assert on
	// this fixture's slice of the report rather than absolute totals.
	now := time.Now().UTC()
	report, err := s.GetSalesReport(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.TotalTransactionCount, int64(2))
	require.NotEmpty(t, report.DailySales)
	assert.Equal(t, now.Format("2006-01-02"), report.DailySales[len(report.DailySales)-1].Date)

	found := 0
	for _, tp := range report.TopProducts {
		for _, id := range f.productIDs {
			if tp.ProductID == id {
				found++
			}
		}
	}
	assert.GreaterOrEqual(t, found, 1, "fixture products must appear in the ranking")
}
