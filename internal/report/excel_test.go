package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tokopos/internal/domain"
	"tokopos/internal/report"
)

func TestWriteXLSX(t *testing.T) {
	salesReport := domain.SalesReport{
		StartDate:               "2026-01-01",
		EndDate:                 "2026-01-31",
		TotalSales:              decimal.RequireFromString("45000"),
		TotalTransactionCount:   2,
		AverageTransactionValue: decimal.RequireFromString("22500"),
		TopProducts: []domain.TopProduct{
			{ProductID: 1, Name: "Kopi Sachet", Quantity: 3, Revenue: decimal.RequireFromString("30000")},
			{ProductID: 2, Name: "Gula 1kg", Quantity: 1, Revenue: decimal.RequireFromString("15000")},
		},
		SalesByPaymentMethod: []domain.PaymentMethodSales{
			{Method: domain.PaymentCash, Count: 2, Total: decimal.RequireFromString("45000")},
		},
		DailySales: []domain.DailySales{
			{Date: "2026-01-10", Transactions: 2, Revenue: decimal.RequireFromString("45000")},
		},
	}
	transactions := []domain.Transaction{
		{
			ID:              1,
			CashierName:     "kasir",
			PaymentMethod:   domain.PaymentCash,
			TotalPrice:      decimal.RequireFromString("30000"),
			TransactionDate: time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC),
			Receipt:         &domain.Receipt{TransactionID: 1, ReceiptNumber: "INV-1-1234"},
			Details: []domain.TransactionDetail{
				{ProductName: "Kopi Sachet", Quantity: 3, UnitPrice: decimal.RequireFromString("10000"), Subtotal: decimal.RequireFromString("30000")},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteXLSX(&buf, salesReport, transactions))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Summary", "Top Products", "Payment Methods", "Daily Sales", "Transaction Detail"}, f.GetSheetList())

	period, err := f.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01 to 2026-01-31", period)

	total, err := f.GetCellValue("Summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "45000", total)

	topName, err := f.GetCellValue("Top Products", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Kopi Sachet", topName)

	method, err := f.GetCellValue("Payment Methods", "A2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCash, method)

	day, err := f.GetCellValue("Daily Sales", "A2")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-10", day)

	receipt, err := f.GetCellValue("Transaction Detail", "B2")
	require.NoError(t, err)
	assert.Equal(t, "INV-1-1234", receipt)
}
