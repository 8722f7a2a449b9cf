package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tokopos/internal/domain"
	"tokopos/internal/store"
)

// Store is a mutex-guarded in-memory Repository. It backs DB-less dev
// mode and the test suite. The single mutex makes every operation,
// including checkout, an atomic unit.
type Store struct {
	mu             sync.RWMutex
	now            func() time.Time
	categories     map[int64]domain.Category
	products       map[int64]*domain.Product
	transactions   map[int64]*domain.Transaction
	ledger         []domain.InventoryEntry
	receiptNumbers map[string]int64
	users          map[string]domain.UserAccount

	nextCategoryID    int64
	nextProductID     int64
	nextTransactionID int64
	nextDetailID      int64
	nextEntryID       int64
	nextReceiptID     int64
	nextUserID        int64
}

func New() *Store {
	return &Store{
		now:            func() time.Time { return time.Now().UTC() },
		categories:     make(map[int64]domain.Category),
		products:       make(map[int64]*domain.Product),
		transactions:   make(map[int64]*domain.Transaction),
		receiptNumbers: make(map[string]int64),
		users:          make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store pre-loaded with demo categories, products
// and the default admin/cashier accounts for DB-less dev mode.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	for _, user := range seedUsers() {
		if _, err := s.CreateUser(ctx, user); err != nil {
			log.Fatalf("[memory-store] seed user %s: %v", user.Username, err)
		}
	}

	type seedProduct struct {
		name     string
		category string
		price    string
		stock    int
	}
	seeds := []seedProduct{
		{"Mie Goreng Instan", "grocery", "3500", 120},
		{"Telur 10 Butir", "grocery", "26500", 40},
		{"Gula 1kg", "grocery", "17400", 35},
		{"Susu UHT 1L", "dairy", "18900", 50},
		{"Roti Tawar", "bakery", "17800", 25},
		{"Kopi Sachet", "beverage", "2600", 200},
		{"Teh Celup", "beverage", "9800", 60},
		{"Air Mineral 600ml", "beverage", "3900", 150},
		{"Keripik Singkong", "snack", "12800", 45},
		{"Coklat Batang", "snack", "8600", 70},
	}

	categoryIDs := make(map[string]int64)
	for _, seed := range seeds {
		if _, ok := categoryIDs[seed.category]; ok {
			continue
		}
		created, err := s.CreateCategory(ctx, domain.Category{Name: seed.category})
		if err != nil {
			log.Fatalf("[memory-store] seed category %s: %v", seed.category, err)
		}
		categoryIDs[seed.category] = created.ID
	}

	for _, seed := range seeds {
		_, err := s.CreateProduct(ctx, domain.Product{
			Name:       seed.name,
			CategoryID: categoryIDs[seed.category],
			Price:      decimal.RequireFromString(seed.price),
		}, seed.stock)
		if err != nil {
			log.Fatalf("[memory-store] seed product %s: %v", seed.name, err)
		}
	}

	return s
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset.
func seedUsers() []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "kasir123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"kasir", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] hash seed password for %s: %v", u.username, err)
		}
		users = append(users, domain.UserAccount{
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.Name == category.Name {
			return nil, fmt.Errorf("category %q already exists: %w", category.Name, store.ErrInvalidInput)
		}
	}

	s.nextCategoryID++
	category.ID = s.nextCategoryID
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.DeletedAt != nil {
			continue
		}
		out = append(out, *s.withCategoryName(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok || p.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return s.withCategoryName(p), nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initialStock int) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || initialStock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
	}

	s.nextProductID++
	product.ID = s.nextProductID
	product.StockQuantity = initialStock
	product.DeletedAt = nil
	s.products[product.ID] = &product

	if initialStock > 0 {
		s.appendLedgerLocked(product.ID, initialStock, domain.StockReasonInitial, nil)
	}

	return s.withCategoryName(&product), nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || existing.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
	}

	// Stock is only mutated through checkout and the ledger paths.
	existing.Name = product.Name
	existing.CategoryID = product.CategoryID
	existing.Price = product.Price
	existing.PhotoURL = product.PhotoURL

	return s.withCategoryName(existing), nil
}

func (s *Store) SoftDeleteProduct(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[id]
	if !ok || existing.DeletedAt != nil {
		return store.ErrNotFound
	}
	deletedAt := at.UTC()
	existing.DeletedAt = &deletedAt
	return nil
}

func (s *Store) CreateCheckout(_ context.Context, order store.CheckoutOrder) (*domain.Transaction, error) {
	if len(order.Lines) == 0 || !domain.IsPaymentMethod(order.PaymentMethod) {
		return nil, store.ErrInvalidInput
	}
	for _, line := range order.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
	}
	// A product listed twice must be checked against its summed quantity.
	lines := store.MergeLines(order.Lines)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every line against current state before any mutation so a
	// failure leaves no partial writes behind.
	for _, line := range lines {
		product, ok := s.products[line.ProductID]
		if !ok || product.DeletedAt != nil {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, store.ErrNotFound)
		}
		if product.StockQuantity < line.Quantity {
			return nil, &store.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.StockQuantity,
			}
		}
	}

	s.nextTransactionID++
	txID := s.nextTransactionID
	createdAt := s.now()

	// Receipt uniqueness is part of the pre-mutation validation: a taken
	// number must not leave decremented stock behind.
	receiptNumber := fmt.Sprintf("INV-%d-%d", txID, createdAt.UnixMilli())
	if _, taken := s.receiptNumbers[receiptNumber]; taken {
		return nil, fmt.Errorf("receipt number %s: %w", receiptNumber, store.ErrConflict)
	}

	total := decimal.Zero
	details := make([]domain.TransactionDetail, 0, len(lines))
	for _, line := range lines {
		product := s.products[line.ProductID]
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		s.nextDetailID++
		details = append(details, domain.TransactionDetail{
			ID:            s.nextDetailID,
			TransactionID: txID,
			ProductID:     product.ID,
			ProductName:   product.Name,
			Quantity:      line.Quantity,
			UnitPrice:     product.Price,
			Subtotal:      subtotal,
		})
		total = total.Add(subtotal)

		product.StockQuantity -= line.Quantity
		s.appendLedgerLocked(product.ID, -line.Quantity, domain.StockReasonSale, &txID)
	}

	s.nextReceiptID++
	receipt := &domain.Receipt{
		ID:            s.nextReceiptID,
		TransactionID: txID,
		ReceiptNumber: receiptNumber,
	}
	s.receiptNumbers[receiptNumber] = txID

	tx := &domain.Transaction{
		ID:              txID,
		UserID:          order.UserID,
		CashierName:     s.usernameByIDLocked(order.UserID),
		TotalPrice:      total,
		PaymentMethod:   order.PaymentMethod,
		TransactionDate: createdAt,
		Details:         details,
		Receipt:         receipt,
	}
	s.transactions[txID] = tx

	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, userID int64, day *time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var from, to time.Time
	if day != nil {
		from = dateUTC(*day)
		to = from.Add(24 * time.Hour)
	}

	out := make([]domain.Transaction, 0, 16)
	for _, tx := range s.transactions {
		if tx.UserID != userID {
			continue
		}
		if day != nil && (tx.TransactionDate.Before(from) || !tx.TransactionDate.Before(to)) {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.After(out[j].TransactionDate) })
	return out, nil
}

func (s *Store) GetTransactionByID(_ context.Context, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactionsRange(_ context.Context, from, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, 32)
	for _, tx := range s.transactions {
		if tx.TransactionDate.Before(from) || !tx.TransactionDate.Before(to) {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.After(out[j].TransactionDate) })
	return out, nil
}

func (s *Store) AdjustStock(_ context.Context, productID int64, delta int, reason string) (*domain.InventoryEntry, error) {
	if delta == 0 || !domain.IsStockReason(reason) || reason == domain.StockReasonSale {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok || product.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	if product.StockQuantity+delta < 0 {
		return nil, &store.StockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   -delta,
			Available:   product.StockQuantity,
		}
	}

	product.StockQuantity += delta
	entry := s.appendLedgerLocked(productID, delta, reason, nil)
	return &entry, nil
}

func (s *Store) ListInventoryEntries(_ context.Context, productID int64) ([]domain.InventoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return nil, store.ErrNotFound
	}

	out := make([]domain.InventoryEntry, 0, 16)
	for _, entry := range s.ledger {
		if entry.ProductID == productID {
			out = append(out, entry)
		}
	}
	// Newest first for the audit view; ids are assigned chronologically.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) GetSalesReport(_ context.Context, from, to time.Time) (domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{
		TotalSales:              decimal.Zero,
		AverageTransactionValue: decimal.Zero,
		TopProducts:             []domain.TopProduct{},
		SalesByPaymentMethod:    []domain.PaymentMethodSales{},
		DailySales:              []domain.DailySales{},
	}

	type productAgg struct {
		quantity int64
		revenue  decimal.Decimal
	}
	byProduct := make(map[int64]*productAgg)
	byPayment := make(map[string]*domain.PaymentMethodSales)
	byDay := make(map[string]*domain.DailySales)

	for _, tx := range s.transactions {
		if tx.TransactionDate.Before(from) || !tx.TransactionDate.Before(to) {
			continue
		}

		report.TotalTransactionCount++
		report.TotalSales = report.TotalSales.Add(tx.TotalPrice)

		pm, ok := byPayment[tx.PaymentMethod]
		if !ok {
			pm = &domain.PaymentMethodSales{Method: tx.PaymentMethod, Total: decimal.Zero}
			byPayment[tx.PaymentMethod] = pm
		}
		pm.Count++
		pm.Total = pm.Total.Add(tx.TotalPrice)

		day := tx.TransactionDate.UTC().Format("2006-01-02")
		ds, ok := byDay[day]
		if !ok {
			ds = &domain.DailySales{Date: day, Revenue: decimal.Zero}
			byDay[day] = ds
		}
		ds.Transactions++
		ds.Revenue = ds.Revenue.Add(tx.TotalPrice)

		for _, detail := range tx.Details {
			agg, ok := byProduct[detail.ProductID]
			if !ok {
				agg = &productAgg{revenue: decimal.Zero}
				byProduct[detail.ProductID] = agg
			}
			agg.quantity += int64(detail.Quantity)
			agg.revenue = agg.revenue.Add(detail.Subtotal)
		}
	}

	if report.TotalTransactionCount > 0 {
		report.AverageTransactionValue = report.TotalSales.
			Div(decimal.NewFromInt(report.TotalTransactionCount)).Round(2)
	}

	for productID, agg := range byProduct {
		name := ""
		if p, ok := s.products[productID]; ok {
			name = p.Name
		}
		report.TopProducts = append(report.TopProducts, domain.TopProduct{
			ProductID: productID,
			Name:      name,
			Quantity:  agg.quantity,
			Revenue:   agg.revenue,
		})
	}
	// Rank by revenue, ties broken by product id ascending, top 10 only.
	sort.Slice(report.TopProducts, func(i, j int) bool {
		cmp := report.TopProducts[i].Revenue.Cmp(report.TopProducts[j].Revenue)
		if cmp != 0 {
			return cmp > 0
		}
		return report.TopProducts[i].ProductID < report.TopProducts[j].ProductID
	})
	if len(report.TopProducts) > 10 {
		report.TopProducts = report.TopProducts[:10]
	}

	for _, pm := range byPayment {
		report.SalesByPaymentMethod = append(report.SalesByPaymentMethod, *pm)
	}
	sort.Slice(report.SalesByPaymentMethod, func(i, j int) bool {
		return report.SalesByPaymentMethod[i].Method < report.SalesByPaymentMethod[j].Method
	})

	for _, ds := range byDay {
		report.DailySales = append(report.DailySales, *ds)
	}
	sort.Slice(report.DailySales, func(i, j int) bool {
		return report.DailySales[i].Date < report.DailySales[j].Date
	})

	return report, nil
}

func (s *Store) GetDashboardStats(_ context.Context) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{TotalRevenue: decimal.Zero}
	for _, p := range s.products {
		if p.DeletedAt == nil {
			stats.ProductCount++
		}
	}
	stats.UserCount = int64(len(s.users))
	for _, tx := range s.transactions {
		stats.TransactionCount++
		stats.TotalRevenue = stats.TotalRevenue.Add(tx.TotalPrice)
	}
	return stats, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if user.Role != domain.RoleAdmin && user.Role != domain.RoleCashier {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return nil, fmt.Errorf("username %q already exists: %w", username, store.ErrInvalidInput)
	}

	s.nextUserID++
	user.ID = s.nextUserID
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[username] = user
	created := user
	return &created, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, passwordHash string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	s.users[username] = user
	return nil
}

func (s *Store) appendLedgerLocked(productID int64, delta int, reason string, transactionID *int64) domain.InventoryEntry {
	s.nextEntryID++
	entry := domain.InventoryEntry{
		ID:              s.nextEntryID,
		ProductID:       productID,
		QuantityChanged: delta,
		Reason:          reason,
		TransactionID:   transactionID,
		CreatedAt:       s.now(),
	}
	s.ledger = append(s.ledger, entry)
	return entry
}

func (s *Store) withCategoryName(p *domain.Product) *domain.Product {
	dup := *p
	if c, ok := s.categories[p.CategoryID]; ok {
		dup.CategoryName = c.Name
	}
	return &dup
}

func (s *Store) usernameByIDLocked(userID int64) string {
	for _, user := range s.users {
		if user.ID == userID {
			return user.Username
		}
	}
	return ""
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dupDetails := make([]domain.TransactionDetail, len(src.Details))
	copy(dupDetails, src.Details)
	dup.Details = dupDetails
	if src.Receipt != nil {
		receipt := *src.Receipt
		dup.Receipt = &receipt
	}
	return &dup
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}
