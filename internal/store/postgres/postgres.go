package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"tokopos/internal/domain"
	"tokopos/internal/store"
)

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
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

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM categories
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name)
		VALUES ($1)
		RETURNING id
	`, category.Name).Scan(&category.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("category %q already exists: %w", category.Name, store.ErrInvalidInput)
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.category_id, c.name, p.price, p.stock_quantity, COALESCE(p.photo_url, '')
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.deleted_at IS NULL
		ORDER BY p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.Price, &p.StockQuantity, &p.PhotoURL); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.category_id, c.name, p.price, p.stock_quantity, COALESCE(p.photo_url, '')
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1 AND p.deleted_at IS NULL
	`, id).Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.Price, &p.StockQuantity, &p.PhotoURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initialStock int) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() || initialStock < 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (name, category_id, price, stock_quantity, photo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), now(), now())
		RETURNING id
	`, product.Name, product.CategoryID, product.Price, initialStock, product.PhotoURL).Scan(&product.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
		}
		return nil, err
	}
	product.StockQuantity = initialStock

	if initialStock > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_entries (product_id, quantity_changed, reason, created_at)
			VALUES ($1, $2, $3, now())
		`, product.ID, initialStock, domain.StockReasonInitial)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, category_id = $2, price = $3, photo_url = NULLIF($4, ''), updated_at = now()
		WHERE id = $5 AND deleted_at IS NULL
	`, product.Name, product.CategoryID, product.Price, product.PhotoURL, product.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) SoftDeleteProduct(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET deleted_at = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL
	`, at.UTC(), id)
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

// CreateCheckout runs the whole sale as one serializable transaction.
// Product rows are locked FOR UPDATE so the stock check and decrement
// cannot race a concurrent checkout; any failure rolls everything back.
func (s *Store) CreateCheckout(ctx context.Context, order store.CheckoutOrder) (*domain.Transaction, error) {
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

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	type productRow struct {
		id    int64
		name  string
		price decimal.Decimal
		stock int
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, price, stock_quantity
		FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, wrapTxErr(err)
	}
	productMap := make(map[int64]productRow, len(ids))
	for rows.Next() {
		var p productRow
		if err := rows.Scan(&p.id, &p.name, &p.price, &p.stock); err != nil {
			_ = rows.Close()
			return nil, err
		}
		productMap[p.id] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, wrapTxErr(err)
	}
	_ = rows.Close()

	// All lines are checked against the locked rows before any write.
	total := decimal.Zero
	for _, line := range lines {
		product, exists := productMap[line.ProductID]
		if !exists {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, store.ErrNotFound)
		}
		if product.stock < line.Quantity {
			return nil, &store.StockError{
				ProductID:   product.id,
				ProductName: product.name,
				Requested:   line.Quantity,
				Available:   product.stock,
			}
		}
		total = total.Add(product.price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	createdAt := time.Now().UTC()
	result := &domain.Transaction{
		UserID:          order.UserID,
		TotalPrice:      total,
		PaymentMethod:   order.PaymentMethod,
		TransactionDate: createdAt,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, total_price, payment_method, transaction_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, order.UserID, total, order.PaymentMethod, createdAt).Scan(&result.ID)
	if err != nil {
		return nil, wrapTxErr(err)
	}

	details := make([]domain.TransactionDetail, 0, len(lines))
	for _, line := range lines {
		product := productMap[line.ProductID]
		subtotal := product.price.Mul(decimal.NewFromInt(int64(line.Quantity)))

		detail := domain.TransactionDetail{
			TransactionID: result.ID,
			ProductID:     product.id,
			ProductName:   product.name,
			Quantity:      line.Quantity,
			UnitPrice:     product.price,
			Subtotal:      subtotal,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO transaction_details (transaction_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, detail.TransactionID, detail.ProductID, detail.Quantity, detail.UnitPrice, detail.Subtotal).Scan(&detail.ID)
		if err != nil {
			return nil, wrapTxErr(err)
		}
		details = append(details, detail)

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, updated_at = now()
			WHERE id = $2
		`, line.Quantity, line.ProductID)
		if err != nil {
			return nil, wrapTxErr(err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_entries (product_id, quantity_changed, reason, transaction_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, line.ProductID, -line.Quantity, domain.StockReasonSale, result.ID, createdAt)
		if err != nil {
			return nil, wrapTxErr(err)
		}
	}
	result.Details = details

	receipt := &domain.Receipt{
		TransactionID: result.ID,
		ReceiptNumber: fmt.Sprintf("INV-%d-%d", result.ID, createdAt.UnixMilli()),
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO receipts (transaction_id, receipt_number)
		VALUES ($1, $2)
		RETURNING id
	`, receipt.TransactionID, receipt.ReceiptNumber).Scan(&receipt.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("receipt number %s: %w", receipt.ReceiptNumber, store.ErrConflict)
		}
		return nil, wrapTxErr(err)
	}
	result.Receipt = receipt

	if err := tx.Commit(); err != nil {
		return nil, wrapTxErr(err)
	}

	return result, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, day *time.Time) ([]domain.Transaction, error) {
	query := `
		SELECT t.id, t.user_id, u.username, t.total_price, t.payment_method, t.transaction_date
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		WHERE t.user_id = $1
	`
	args := []any{userID}
	if day != nil {
		from := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
		query += ` AND t.transaction_date >= $2 AND t.transaction_date < $3`
		args = append(args, from, from.Add(24*time.Hour))
	}
	query += ` ORDER BY t.transaction_date DESC`

	return s.queryTransactions(ctx, query, args...)
}

func (s *Store) GetTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	transactions, err := s.queryTransactions(ctx, `
		SELECT t.id, t.user_id, u.username, t.total_price, t.payment_method, t.transaction_date
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		WHERE t.id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return nil, store.ErrNotFound
	}
	return &transactions[0], nil
}

func (s *Store) ListTransactionsRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT t.id, t.user_id, u.username, t.total_price, t.payment_method, t.transaction_date
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		WHERE t.transaction_date >= $1 AND t.transaction_date < $2
		ORDER BY t.transaction_date DESC
	`, from, to)
}

// queryTransactions loads transaction headers and then attaches details
// and receipts in two batched follow-up queries.
func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 32)
	index := make(map[int64]int)
	ids := make([]int64, 0, 32)
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.CashierName, &t.TotalPrice, &t.PaymentMethod, &t.TransactionDate); err != nil {
			return nil, err
		}
		index[t.ID] = len(transactions)
		ids = append(ids, t.ID)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return transactions, nil
	}

	detailRows, err := s.db.QueryContext(ctx, `
		SELECT td.id, td.transaction_id, td.product_id, p.name, td.quantity, td.unit_price, td.subtotal
		FROM transaction_details td
		JOIN products p ON p.id = td.product_id
		WHERE td.transaction_id = ANY($1)
		ORDER BY td.id
	`, ids)
	if err != nil {
		return nil, err
	}
	for detailRows.Next() {
		var d domain.TransactionDetail
		if err := detailRows.Scan(&d.ID, &d.TransactionID, &d.ProductID, &d.ProductName, &d.Quantity, &d.UnitPrice, &d.Subtotal); err != nil {
			_ = detailRows.Close()
			return nil, err
		}
		if i, ok := index[d.TransactionID]; ok {
			transactions[i].Details = append(transactions[i].Details, d)
		}
	}
	if err := detailRows.Err(); err != nil {
		_ = detailRows.Close()
		return nil, err
	}
	_ = detailRows.Close()

	receiptRows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, receipt_number
		FROM receipts
		WHERE transaction_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	for receiptRows.Next() {
		var r domain.Receipt
		if err := receiptRows.Scan(&r.ID, &r.TransactionID, &r.ReceiptNumber); err != nil {
			_ = receiptRows.Close()
			return nil, err
		}
		if i, ok := index[r.TransactionID]; ok {
			receipt := r
			transactions[i].Receipt = &receipt
		}
	}
	if err := receiptRows.Err(); err != nil {
		_ = receiptRows.Close()
		return nil, err
	}
	_ = receiptRows.Close()

	return transactions, nil
}

func (s *Store) AdjustStock(ctx context.Context, productID int64, delta int, reason string) (*domain.InventoryEntry, error) {
	if delta == 0 || !domain.IsStockReason(reason) || reason == domain.StockReasonSale {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	var stock int
	err = tx.QueryRowContext(ctx, `
		SELECT name, stock_quantity
		FROM products
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, productID).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if stock+delta < 0 {
		return nil, &store.StockError{
			ProductID:   productID,
			ProductName: name,
			Requested:   -delta,
			Available:   stock,
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $1, updated_at = now()
		WHERE id = $2
	`, delta, productID)
	if err != nil {
		return nil, err
	}

	entry := domain.InventoryEntry{
		ProductID:       productID,
		QuantityChanged: delta,
		Reason:          reason,
		CreatedAt:       time.Now().UTC(),
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO inventory_entries (product_id, quantity_changed, reason, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, entry.ProductID, entry.QuantityChanged, entry.Reason, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListInventoryEntries(ctx context.Context, productID int64) ([]domain.InventoryEntry, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, quantity_changed, reason, transaction_id, created_at
		FROM inventory_entries
		WHERE product_id = $1
		ORDER BY id DESC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InventoryEntry, 0, 32)
	for rows.Next() {
		var entry domain.InventoryEntry
		var txID sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.QuantityChanged, &entry.Reason, &txID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if txID.Valid {
			entry.TransactionID = &txID.Int64
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) GetSalesReport(ctx context.Context, from, to time.Time) (domain.SalesReport, error) {
	report := domain.SalesReport{
		TotalSales:              decimal.Zero,
		AverageTransactionValue: decimal.Zero,
		TopProducts:             []domain.TopProduct{},
		SalesByPaymentMethod:    []domain.PaymentMethodSales{},
		DailySales:              []domain.DailySales{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_price), 0)
		FROM transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
	`, from, to).Scan(&report.TotalTransactionCount, &report.TotalSales)
	if err != nil {
		return report, err
	}
	if report.TotalTransactionCount > 0 {
		report.AverageTransactionValue = report.TotalSales.
			Div(decimal.NewFromInt(report.TotalTransactionCount)).Round(2)
	}

	topRows, err := s.db.QueryContext(ctx, `
		SELECT td.product_id, p.name, SUM(td.quantity), SUM(td.subtotal) AS revenue
		FROM transaction_details td
		JOIN transactions t ON t.id = td.transaction_id
		JOIN products p ON p.id = td.product_id
		WHERE t.transaction_date >= $1 AND t.transaction_date < $2
		GROUP BY td.product_id, p.name
		ORDER BY revenue DESC, td.product_id ASC
		LIMIT 10
	`, from, to)
	if err != nil {
		return report, err
	}
	for topRows.Next() {
		var tp domain.TopProduct
		if err := topRows.Scan(&tp.ProductID, &tp.Name, &tp.Quantity, &tp.Revenue); err != nil {
			_ = topRows.Close()
			return report, err
		}
		report.TopProducts = append(report.TopProducts, tp)
	}
	if err := topRows.Err(); err != nil {
		_ = topRows.Close()
		return report, err
	}
	_ = topRows.Close()

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total_price), 0)
		FROM transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to)
	if err != nil {
		return report, err
	}
	for paymentRows.Next() {
		var pm domain.PaymentMethodSales
		if err := paymentRows.Scan(&pm.Method, &pm.Count, &pm.Total); err != nil {
			_ = paymentRows.Close()
			return report, err
		}
		report.SalesByPaymentMethod = append(report.SalesByPaymentMethod, pm)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return report, err
	}
	_ = paymentRows.Close()

	dailyRows, err := s.db.QueryContext(ctx, `
		SELECT transaction_date::date AS day, COUNT(*), COALESCE(SUM(total_price), 0)
		FROM transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
		GROUP BY day
		ORDER BY day ASC
	`, from, to)
	if err != nil {
		return report, err
	}
	for dailyRows.Next() {
		var day time.Time
		var ds domain.DailySales
		if err := dailyRows.Scan(&day, &ds.Transactions, &ds.Revenue); err != nil {
			_ = dailyRows.Close()
			return report, err
		}
		ds.Date = day.Format("2006-01-02")
		report.DailySales = append(report.DailySales, ds)
	}
	if err := dailyRows.Err(); err != nil {
		_ = dailyRows.Close()
		return report, err
	}
	_ = dailyRows.Close()

	return report, nil
}

func (s *Store) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	stats := domain.DashboardStats{TotalRevenue: decimal.Zero}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COALESCE(SUM(total_price), 0) FROM transactions)
	`).Scan(&stats.ProductCount, &stats.UserCount, &stats.TransactionCount, &stats.TotalRevenue)
	return stats, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Username == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if user.Role != domain.RoleAdmin && user.Role != domain.RoleCashier {
		return nil, store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, user.Username, user.PasswordHash, user.Role, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q already exists: %w", user.Username, store.ErrInvalidInput)
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $1
		WHERE username = $2
	`, passwordHash, username)
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

// wrapTxErr maps serialization failures to ErrConflict so callers can
// distinguish a retryable lost race from a hard persistence failure.
func wrapTxErr(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("checkout lost a concurrent stock race: %w", store.ErrConflict)
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
