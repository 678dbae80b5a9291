package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billingapp "lounge-desk/internal/billing/application"
)

// BuildReceiptPDF renders a printable receipt for a session view.
func BuildReceiptPDF(view billingapp.View, currency string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Lounge Receipt")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Customer: %s", view.HolderName))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Phone: %s", view.HolderPhone))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Session: %s", view.SessionID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Entry: %s", view.EntryAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", view.State))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Station", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Elapsed", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Rate/h", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, station := range view.Stations {
		pdf.CellFormat(30, 6, station.Kind.String(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, station.StartAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, station.Elapsed, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", station.Rate), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, station.Cost, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range view.FoodLines {
		pdf.CellFormat(60, 6, line.Item, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", line.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", line.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, line.Cost, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Stations (%s): %s", currency, view.StationTotal))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Food (%s): %s", currency, view.FoodTotal))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total (%s): %s", currency, view.Total))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Discount: %.0f%%", view.Discount))
	pdf.Ln(5)
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Amount due (%s): %s", currency, view.Final))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReceiptXLSX renders a receipt workbook with summary, stations and food sheets.
func BuildReceiptXLSX(view billingapp.View, currency string) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	stationsSheet := "stations"
	foodSheet := "food"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(stationsSheet)
	f.NewSheet(foodSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Lounge Receipt")
	_ = f.SetCellValue(summarySheet, "A3", "Customer")
	_ = f.SetCellValue(summarySheet, "B3", view.HolderName)
	_ = f.SetCellValue(summarySheet, "A4", "Phone")
	_ = f.SetCellValue(summarySheet, "B4", view.HolderPhone)
	_ = f.SetCellValue(summarySheet, "A5", "Session")
	_ = f.SetCellValue(summarySheet, "B5", view.SessionID)
	_ = f.SetCellValue(summarySheet, "A6", "Status")
	_ = f.SetCellValue(summarySheet, "B6", string(view.State))
	_ = f.SetCellValue(summarySheet, "A7", "Stations")
	_ = f.SetCellValue(summarySheet, "B7", view.StationTotal)
	_ = f.SetCellValue(summarySheet, "A8", "Food")
	_ = f.SetCellValue(summarySheet, "B8", view.FoodTotal)
	_ = f.SetCellValue(summarySheet, "A9", "Total")
	_ = f.SetCellValue(summarySheet, "B9", view.Total)
	_ = f.SetCellValue(summarySheet, "A10", "Discount %")
	_ = f.SetCellValue(summarySheet, "B10", view.Discount)
	_ = f.SetCellValue(summarySheet, "A11", "Amount due")
	_ = f.SetCellValue(summarySheet, "B11", view.Final)
	_ = f.SetCellValue(summarySheet, "A12", "Currency")
	_ = f.SetCellValue(summarySheet, "B12", currency)

	_ = f.SetCellValue(stationsSheet, "A1", "Station")
	_ = f.SetCellValue(stationsSheet, "B1", "Start")
	_ = f.SetCellValue(stationsSheet, "C1", "End")
	_ = f.SetCellValue(stationsSheet, "D1", "Elapsed")
	_ = f.SetCellValue(stationsSheet, "E1", "Rate")
	_ = f.SetCellValue(stationsSheet, "F1", "Cost")
	for i, station := range view.Stations {
		row := i + 2
		end := ""
		if station.EndAt != nil {
			end = station.EndAt.Format(time.RFC3339)
		}
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("A%d", row), station.Kind.String())
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("B%d", row), station.StartAt.Format(time.RFC3339))
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("C%d", row), end)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("D%d", row), station.Elapsed)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("E%d", row), station.Rate)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("F%d", row), station.Cost)
	}

	_ = f.SetCellValue(foodSheet, "A1", "Item")
	_ = f.SetCellValue(foodSheet, "B1", "Price")
	_ = f.SetCellValue(foodSheet, "C1", "Quantity")
	_ = f.SetCellValue(foodSheet, "D1", "Cost")
	for i, line := range view.FoodLines {
		row := i + 2
		_ = f.SetCellValue(foodSheet, fmt.Sprintf("A%d", row), line.Item)
		_ = f.SetCellValue(foodSheet, fmt.Sprintf("B%d", row), line.Price)
		_ = f.SetCellValue(foodSheet, fmt.Sprintf("C%d", row), line.Quantity)
		_ = f.SetCellValue(foodSheet, fmt.Sprintf("D%d", row), line.Cost)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
