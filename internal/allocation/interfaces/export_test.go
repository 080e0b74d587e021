package interfaces

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	allocapp "netgen-allocation/internal/allocation/application"
	allocation "netgen-allocation/internal/allocation/domain"
)

func exportFixture() (*allocation.Report, allocapp.Summary, []allocation.AllocatedRecord) {
	jan := time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)
	report := &allocation.Report{
		ID:                "report-alloc-2018-20190304",
		JobID:             "alloc-2018-20190304",
		Year:              2018,
		ReportDate:        time.Date(2019, time.March, 4, 0, 0, 0, 0, time.UTC),
		RecommendedAction: "none",
		CreatedAt:         time.Date(2019, time.March, 4, 3, 0, 0, 0, time.UTC),
	}
	summary := allocapp.Summary{
		AllocatedRows: 2,
		Tiers:         map[string]int{"direct_evidence": 2},
		Diagnostics:   map[string]int{"missing_association": 0, "underdetermined_group": 0},
	}
	rows := []allocation.AllocatedRecord{
		{PlantID: 50307, GeneratorID: "GEN1", PrimeMover: "ST", FuelType: "NG", Month: jan, NetGenerationMWh: allocation.Float(14), FuelConsumedMMBtu: allocation.Float(93333.33), Fraction: 14.0 / 15, Tier: allocation.TierDirectEvidence},
		{PlantID: 50307, GeneratorID: "GEN2", PrimeMover: "ST", FuelType: "NG", Month: jan, NetGenerationMWh: allocation.Float(1), Fraction: 1.0 / 15, Tier: allocation.TierDirectEvidence},
	}
	return report, summary, rows
}

func TestBuildReportXLSX(t *testing.T) {
	report, summary, rows := exportFixture()
	data, err := BuildReportXLSX(report, summary, rows)
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	title, _ := f.GetCellValue("summary", "A1")
	if title != "Net Generation Allocation Report" {
		t.Fatalf("unexpected title %q", title)
	}
	header, _ := f.GetCellValue("allocated", "A1")
	if header != "plant_id_eia" {
		t.Fatalf("unexpected header %q", header)
	}
	gen, _ := f.GetCellValue("allocated", "B3")
	if gen != "GEN2" {
		t.Fatalf("unexpected generator %q", gen)
	}
	fuel, _ := f.GetCellValue("allocated", "G3")
	if fuel != "" {
		t.Fatalf("nil fuel must leave an empty cell, got %q", fuel)
	}
}

func TestBuildReportPDF(t *testing.T) {
	report, summary, rows := exportFixture()
	data, err := BuildReportPDF(report, summary, rows)
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected pdf header")
	}
}

func TestPlantMonthTotals(t *testing.T) {
	_, _, rows := exportFixture()
	totals := plantMonthTotals(rows)
	if len(totals) != 1 {
		t.Fatalf("expected one plant month, got %d", len(totals))
	}
	if totals[0].netgen != 15 || totals[0].fuel != 93333.33 {
		t.Fatalf("unexpected totals %+v", totals[0])
	}
}
