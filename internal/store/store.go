package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokopos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrConflict signals a lost concurrency race (e.g. a serialization
	// failure on the checkout transaction). The caller may retry the
	// whole checkout; no partial writes remain.
	ErrConflict = errors.New("concurrency conflict")
)

// StockError names the product that failed the stock check.
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CheckoutOrder is the validated input to the atomic checkout unit.
// Line prices are advisory; the store snapshots unit prices from the
// product rows inside the same transaction that decrements stock.
type CheckoutOrder struct {
	UserID        int64
	PaymentMethod string
	Lines         []domain.CartLine
}

// MergeLines combines cart lines that reference the same product,
// summing their quantities. Stock checks must see the total requested
// per product, not each line in isolation.
func MergeLines(lines []domain.CartLine) []domain.CartLine {
	merged := make([]domain.CartLine, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

type Repository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product, initialStock int) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SoftDeleteProduct(ctx context.Context, id int64, at time.Time) error

	// CreateCheckout executes the whole sale as one atomic unit:
	// stock re-read and check, transaction + details + ledger entries +
	// receipt creation, stock decrement. All of it commits or none does.
	CreateCheckout(ctx context.Context, order CheckoutOrder) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, day *time.Time) ([]domain.Transaction, error)
	GetTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error)
	ListTransactionsRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error)

	AdjustStock(ctx context.Context, productID int64, delta int, reason string) (*domain.InventoryEntry, error)
	ListInventoryEntries(ctx context.Context, productID int64) ([]domain.InventoryEntry, error)

	GetSalesReport(ctx context.Context, from, to time.Time) (domain.SalesReport, error)
	GetDashboardStats(ctx context.Context) (domain.DashboardStats, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error
}
