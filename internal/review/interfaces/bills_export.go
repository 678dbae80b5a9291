package interfaces

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	review "lounge-desk/internal/review/application"
)

// BuildBillsXLSX renders the daily bills table.
func BuildBillsXLSX(day string, bills []review.Bill, currency string) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "bills"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Daily Bills")
	_ = f.SetCellValue(sheet, "B1", day)
	_ = f.SetCellValue(sheet, "A3", "User ID")
	_ = f.SetCellValue(sheet, "B3", "Customer")
	_ = f.SetCellValue(sheet, "C3", "Amount ("+currency+")")
	_ = f.SetCellValue(sheet, "D3", "Verified")
	total := 0.0
	for i, bill := range bills {
		row := i + 4
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), bill.UserID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), bill.Username)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), bill.Amount)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), bill.Verified)
		total += bill.Amount
	}
	totalRow := len(bills) + 5
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", totalRow), "Total")
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", totalRow), total)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
