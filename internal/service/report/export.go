package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"bloom-payments/internal/domain/payment"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	exportSheet   = "Transactions"
	exportPage    = 500
	maxExportRows = 50000
)

var exportHeader = []interface{}{
	"Number", "Date", "Status", "Customer", "Channel", "Employee",
	"Total", "Currency", "Methods", "Orders", "Refund Of", "Errors",
}

// ExportTransactions writes the transactions matching c to w as an XLSX workbook.
func (s *Service) ExportTransactions(ctx context.Context, c payment.SearchCriteria, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", "L1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	// Page through the search so large ranges stay bounded in memory
	row := 2
	c.Limit = exportPage
	for c.Offset = 0; row-2 < maxExportRows; c.Offset += exportPage {
		txns, _, err := s.transactions.Search(ctx, c)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}

		for _, t := range txns {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			values := exportRow(t)
			if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row, err)
			}
			row++
		}
		if len(txns) < exportPage {
			break
		}
	}

	if err := f.SetColWidth(exportSheet, "A", "B", 20); err != nil {
		return err
	}
	if err := f.SetColWidth(exportSheet, "I", "L", 32); err != nil {
		return err
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	s.logger.Info("transactions exported", zap.Int("rows", row-2))
	return f.Write(w)
}

func exportRow(t *payment.PaymentTransaction) []interface{} {
	methods := make([]string, 0, len(t.PaymentMethods))
	for _, m := range t.PaymentMethods {
		methods = append(methods, fmt.Sprintf("%s %s %s", m.Type, m.Amount.MajorString(), m.Status))
	}
	customer := strings.TrimSpace(t.Customer.FirstName + " " + t.Customer.LastName)
	if customer == "" {
		customer = t.CustomerID
	}

	return []interface{}{
		t.TransactionNumber,
		t.ProcessedAt.Format("2006-01-02 15:04:05"),
		string(t.Status),
		customer,
		string(t.Channel),
		t.EmployeeID,
		t.TotalAmount.Decimal().InexactFloat64(),
		t.TotalAmount.Currency,
		strings.Join(methods, "; "),
		strings.Join(t.OrderIDs, ", "),
		t.RefundOf,
		strings.Join(t.ErrorMessages, "; "),
	}
}
