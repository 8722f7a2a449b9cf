// Package report renders an aggregated sales report as an XLSX
// workbook for download. Aggregation itself lives in the store; this
// package only formats.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"tokopos/internal/domain"
)

const (
	sheetSummary        = "Summary"
	sheetTopProducts    = "Top Products"
	sheetPaymentMethods = "Payment Methods"
	sheetDailySales     = "Daily Sales"
	sheetDetail         = "Transaction Detail"
)

// WriteXLSX writes a workbook with one sheet per report section plus a
// line-item dump of every transaction in range.
func WriteXLSX(w io.Writer, report domain.SalesReport, transactions []domain.Transaction) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeSummary(f, report); err != nil {
		return err
	}
	if err := writeTopProducts(f, report.TopProducts); err != nil {
		return err
	}
	if err := writePaymentMethods(f, report.SalesByPaymentMethod); err != nil {
		return err
	}
	if err := writeDailySales(f, report.DailySales); err != nil {
		return err
	}
	if err := writeDetail(f, transactions); err != nil {
		return err
	}

	// The default sheet excelize creates is renamed in writeSummary, so
	// the workbook opens on the summary.
	index, err := f.GetSheetIndex(sheetSummary)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	return f.Write(w)
}

func writeSummary(f *excelize.File, report domain.SalesReport) error {
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	rows := [][]any{
		{"Sales Report"},
		{"Period", fmt.Sprintf("%s to %s", report.StartDate, report.EndDate)},
		{},
		{"Total Sales", report.TotalSales.InexactFloat64()},
		{"Total Transactions", report.TotalTransactionCount},
		{"Average Transaction Value", report.AverageTransactionValue.InexactFloat64()},
	}
	return writeRows(f, sheetSummary, rows)
}

func writeTopProducts(f *excelize.File, products []domain.TopProduct) error {
	if _, err := f.NewSheet(sheetTopProducts); err != nil {
		return err
	}
	rows := [][]any{{"Rank", "Product", "Quantity Sold", "Revenue"}}
	for i, p := range products {
		rows = append(rows, []any{i + 1, p.Name, p.Quantity, p.Revenue.InexactFloat64()})
	}
	return writeRows(f, sheetTopProducts, rows)
}

func writePaymentMethods(f *excelize.File, methods []domain.PaymentMethodSales) error {
	if _, err := f.NewSheet(sheetPaymentMethods); err != nil {
		return err
	}
	rows := [][]any{{"Payment Method", "Transactions", "Total"}}
	for _, m := range methods {
		rows = append(rows, []any{m.Method, m.Count, m.Total.InexactFloat64()})
	}
	return writeRows(f, sheetPaymentMethods, rows)
}

func writeDailySales(f *excelize.File, days []domain.DailySales) error {
	if _, err := f.NewSheet(sheetDailySales); err != nil {
		return err
	}
	rows := [][]any{{"Date", "Transactions", "Revenue"}}
	for _, d := range days {
		rows = append(rows, []any{d.Date, d.Transactions, d.Revenue.InexactFloat64()})
	}
	return writeRows(f, sheetDailySales, rows)
}

func writeDetail(f *excelize.File, transactions []domain.Transaction) error {
	if _, err := f.NewSheet(sheetDetail); err != nil {
		return err
	}
	rows := [][]any{{"Transaction ID", "Receipt", "Date", "Cashier", "Payment Method", "Product", "Quantity", "Unit Price", "Subtotal"}}
	for _, t := range transactions {
		receipt := ""
		if t.Receipt != nil {
			receipt = t.Receipt.ReceiptNumber
		}
		for _, d := range t.Details {
			rows = append(rows, []any{
				t.ID,
				receipt,
				t.TransactionDate.Format("2006-01-02 15:04:05"),
				t.CashierName,
				t.PaymentMethod,
				d.ProductName,
				d.Quantity,
				d.UnitPrice.InexactFloat64(),
				d.Subtotal.InexactFloat64(),
			})
		}
	}
	return writeRows(f, sheetDetail, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
