package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentEWallet = "e_wallet"
)

// PaymentMethods is the closed set of accepted payment methods.
var PaymentMethods = []string{PaymentCash, PaymentCard, PaymentEWallet}

func IsPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if method == m {
			return true
		}
	}
	return false
}

// Inventory ledger reason codes. Entries are append-only; "initial" is
// written once when a product is created with opening stock so that
// replaying a product's ledger from zero reproduces the live counter.
const (
	StockReasonInitial    = "initial"
	StockReasonSale       = "sale"
	StockReasonRestock    = "restock"
	StockReasonAdjustment = "adjustment"
)

func IsStockReason(reason string) bool {
	switch reason {
	case StockReasonInitial, StockReasonSale, StockReasonRestock, StockReasonAdjustment:
		return true
	}
	return false
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	CategoryID    int64           `json:"category_id"`
	CategoryName  string          `json:"category_name,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	PhotoURL      string          `json:"photo_url,omitempty"`
	DeletedAt     *time.Time      `json:"-"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name"`
	CategoryID    int64           `json:"category_id"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	PhotoURL      string          `json:"photo_url,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string          `json:"name,omitempty"`
	CategoryID *int64           `json:"category_id,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	PhotoURL   *string          `json:"photo_url,omitempty"`
}

// Transaction is immutable once created: there is no update or void path.
type Transaction struct {
	ID              int64               `json:"id"`
	UserID          int64               `json:"user_id"`
	CashierName     string              `json:"cashier_name,omitempty"`
	TotalPrice      decimal.Decimal     `json:"total_price"`
	PaymentMethod   string              `json:"payment_method"`
	TransactionDate time.Time           `json:"transaction_date"`
	Details         []TransactionDetail `json:"details,omitempty"`
	Receipt         *Receipt            `json:"receipt,omitempty"`
}

// TransactionDetail snapshots quantity, unit price and subtotal at sale
// time. Subtotal is never recomputed from the current product price.
type TransactionDetail struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

// InventoryEntry is one row of the append-only stock ledger.
type InventoryEntry struct {
	ID              int64     `json:"id"`
	ProductID       int64     `json:"product_id"`
	QuantityChanged int       `json:"quantity_changed"`
	Reason          string    `json:"reason"`
	TransactionID   *int64    `json:"transaction_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Receipt struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	ReceiptNumber string `json:"receipt_number"`
}

type CartLine struct {
	ProductID int64           `json:"id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CheckoutRequest is the wire payload of the checkout endpoint. The
// client-supplied line prices and total are advisory: the server
// recomputes the authoritative values from the product rows.
type CheckoutRequest struct {
	Items         []CartLine      `json:"items"`
	PaymentMethod string          `json:"payment_method"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

type CheckoutResponse struct {
	TransactionID   int64               `json:"transaction_id"`
	ReceiptNumber   string              `json:"receipt_number"`
	PaymentMethod   string              `json:"payment_method"`
	LineItems       []TransactionDetail `json:"line_items"`
	Total           decimal.Decimal     `json:"total"`
	TransactionDate time.Time           `json:"transaction_date"`
}

type StockChangeRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type TopProduct struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type PaymentMethodSales struct {
	Method string          `json:"method"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

type DailySales struct {
	Date         string          `json:"date"`
	Transactions int64           `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type SalesReport struct {
	StartDate               string               `json:"start_date"`
	EndDate                 string               `json:"end_date"`
	TotalSales              decimal.Decimal      `json:"totalSales"`
	TotalTransactionCount   int64                `json:"totalTransactions"`
	AverageTransactionValue decimal.Decimal      `json:"averageTransactionValue"`
	TopProducts             []TopProduct         `json:"topProducts"`
	SalesByPaymentMethod    []PaymentMethodSales `json:"salesByPaymentMethod"`
	DailySales              []DailySales         `json:"dailySales"`
}

type DashboardStats struct {
	ProductCount     int64           `json:"products_count"`
	UserCount        int64           `json:"users_count"`
	TransactionCount int64           `json:"transactions_count"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated identity a request acts as. The core trusts
// it as resolved by the HTTP layer's token parsing.
type Actor struct {
	UserID   int64
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserView struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// SaleCompletedEvent is published to the event broker after a checkout
// commits. Publishing is best effort and never fails the sale.
type SaleCompletedEvent struct {
	TransactionID int64     `json:"transaction_id"`
	ReceiptNumber string    `json:"receipt_number"`
	UserID        int64     `json:"user_id"`
	PaymentMethod string    `json:"payment_method"`
	Total         string    `json:"total"`
	LineCount     int       `json:"line_count"`
	OccurredAt    time.Time `json:"occurred_at"`
}
