package interfaces

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	allocapp "netgen-allocation/internal/allocation/application"
	allocation "netgen-allocation/internal/allocation/domain"
)

// BuildReportPDF renders a run summary for a report.
func BuildReportPDF(report *allocation.Report, summary allocapp.Summary, rows []allocation.AllocatedRecord) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Net Generation Allocation Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Report: %s", report.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Year: %d", report.Year))
	pdf.Ln(5)
	if len(report.PlantIDs) > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Plants: %s", joinPlants(report.PlantIDs)))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Report date: %s", report.ReportDate.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Recommended action: %s", report.RecommendedAction))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Allocated rows: %d", summary.AllocatedRows))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Unallocated boiler fuel (MMBtu): %.3f", summary.UnallocatedFuelMMBtu))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Drift groups: %d (max deviation %.3g)", summary.DriftGroups, summary.MaxDrift))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 6, "Diagnostic", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, kind := range sortedKeys(summary.Diagnostics) {
		pdf.CellFormat(70, 6, kind, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", summary.Diagnostics[kind]), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 6, "Tier", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Rows", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, tier := range sortedKeys(summary.Tiers) {
		pdf.CellFormat(70, 6, tier, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", summary.Tiers[tier]), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	totals := plantMonthTotals(rows)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Plant", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Month", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Net generation (MWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Fuel (MMBtu)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, t := range totals {
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", t.plantID), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, allocation.FormatMonth(t.month), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.3f", t.netgen), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.3f", t.fuel), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders the summary and the allocated rows of a report.
func BuildReportXLSX(report *allocation.Report, summary allocapp.Summary, rows []allocation.AllocatedRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	rowsSheet := "allocated"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(rowsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Net Generation Allocation Report")
	info := [][2]any{
		{"Report", report.ID},
		{"Job", report.JobID},
		{"Year", report.Year},
		{"Plants", joinPlants(report.PlantIDs)},
		{"Report date", report.ReportDate.Format("2006-01-02")},
		{"Allocated rows", summary.AllocatedRows},
		{"Unallocated boiler fuel (MMBtu)", summary.UnallocatedFuelMMBtu},
		{"Drift groups", summary.DriftGroups},
		{"Max drift", summary.MaxDrift},
		{"Recommended action", report.RecommendedAction},
	}
	row := 3
	for _, kv := range info {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), kv[1])
		row++
	}
	row++
	for _, kind := range sortedKeys(summary.Diagnostics) {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), kind)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), summary.Diagnostics[kind])
		row++
	}

	for i, h := range allocapp.AllocatedHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(rowsSheet, cell, h)
	}
	for i, rec := range rows {
		r := i + 2
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("A%d", r), rec.PlantID)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("B%d", r), rec.GeneratorID)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("C%d", r), rec.PrimeMover)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("D%d", r), rec.FuelType)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("E%d", r), allocation.FormatMonth(rec.Month))
		if rec.NetGenerationMWh != nil {
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("F%d", r), *rec.NetGenerationMWh)
		}
		if rec.FuelConsumedMMBtu != nil {
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("G%d", r), *rec.FuelConsumedMMBtu)
		}
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("H%d", r), rec.Fraction)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("I%d", r), string(rec.Tier))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type plantMonthTotal struct {
	plantID int
	month   time.Time
	netgen  float64
	fuel    float64
}

func plantMonthTotals(rows []allocation.AllocatedRecord) []plantMonthTotal {
	type key struct {
		plantID int
		month   time.Time
	}
	index := make(map[key]int)
	var out []plantMonthTotal
	for _, rec := range rows {
		k := key{plantID: rec.PlantID, month: rec.Month}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, plantMonthTotal{plantID: rec.PlantID, month: rec.Month})
		}
		if rec.NetGenerationMWh != nil {
			out[i].netgen += *rec.NetGenerationMWh
		}
		if rec.FuelConsumedMMBtu != nil {
			out[i].fuel += *rec.FuelConsumedMMBtu
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].plantID != out[j].plantID {
			return out[i].plantID < out[j].plantID
		}
		return out[i].month.Before(out[j].month)
	})
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPlants(ids []int) string {
	if len(ids) == 0 {
		return "all"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
