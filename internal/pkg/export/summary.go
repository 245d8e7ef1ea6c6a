package export

import (
	"fmt"
	"io"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
)

const (
	SummarySheet = "Summary"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SummaryFilename names the download for a branch summary.
func SummaryFilename(sum *billing.DiscountSummary) string {
	branch := sum.BranchCode
	if branch == "" {
		branch = "all"
	}
	return fmt.Sprintf("discount-summary-%s-%s-%s.xlsx", branch, sum.From.Format("20060102"), sum.To.Format("20060102"))
}

// WriteDiscountSummary renders the summary as a two column workbook.
func WriteDiscountSummary(w io.Writer, sum *billing.DiscountSummary) error {
	branch := sum.BranchCode
	if branch == "" {
		branch = "all branches"
	}

	rows := [][2]interface{}{
		{"Branch", branch},
		{"From", sum.From.UTC().Format(time.RFC3339)},
		{"To", sum.To.UTC().Format(time.RFC3339)},
		{"Total revenue", sum.TotalRevenue},
		{"Total discount", sum.TotalDiscount},
		{"Total refund", sum.TotalRefund},
		{"Net revenue", sum.NetRevenue},
		{"Discount rate", fmt.Sprintf("%.2f%%", sum.DiscountRate)},
		{"Revenue entries", sum.RevenueCount},
		{"Discount entries", sum.DiscountCount},
		{"Refund entries", sum.RefundCount},
		{"Generated at", sum.GeneratedAt.UTC().Format(time.RFC3339)},
	}

	file := excelize.NewFile()
	file.NewSheet(SummarySheet)
	file.DeleteSheet("Sheet1")
	file.SetCellValue(SummarySheet, "A1", "Metric")
	file.SetCellValue(SummarySheet, "B1", "Value")
	for i, row := range rows {
		line := i + 2
		file.SetCellValue(SummarySheet, fmt.Sprintf("A%d", line), row[0])
		file.SetCellValue(SummarySheet, fmt.Sprintf("B%d", line), row[1])
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write summary workbook: %w", err)
	}
	return nil
}
