package application

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	allocation "netgen-allocation/internal/allocation/domain"
)

const timeLayout = time.RFC3339

// Report file names inside a report directory and archive.
const (
	FileAllocated   = "allocated.csv"
	FileGenerators  = "generator_totals.csv"
	FileDiagnostics = "diagnostics.json"
	FileSummary     = "summary.json"
	FileArchive     = "report.zip"
)

// Summary is the persisted digest of one run.
type Summary struct {
	JobID                string         `json:"job_id"`
	Year                 int            `json:"year"`
	PlantIDs             []int          `json:"plant_ids,omitempty"`
	GeneratedAt          string         `json:"generated_at"`
	CandidateRows        int            `json:"candidate_rows"`
	AllocatedRows        int            `json:"allocated_rows"`
	GeneratorRows        int            `json:"generator_rows"`
	Tiers                map[string]int `json:"tiers"`
	Diagnostics          map[string]int `json:"diagnostics"`
	UnallocatedFuelMMBtu float64        `json:"unallocated_fuel_mmbtu"`
	DriftGroups          int            `json:"drift_groups"`
	MaxDrift             float64        `json:"max_drift"`
	Thresholds           Thresholds     `json:"thresholds"`
}

// DecodeSummary parses a stored summary.
func DecodeSummary(data []byte) (Summary, error) {
	var s Summary
	if len(data) == 0 {
		return s, nil
	}
	err := json.Unmarshal(data, &s)
	return s, err
}

func buildSummary(jobID string, scope allocation.Scope, result *allocation.Result, thresholds Thresholds) Summary {
	tiers := make(map[string]int)
	for _, r := range result.Allocated {
		tiers[string(r.Tier)]++
	}
	return Summary{
		JobID:                jobID,
		Year:                 scope.Year,
		PlantIDs:             scope.PlantIDs,
		GeneratedAt:          time.Now().UTC().Format(timeLayout),
		CandidateRows:        len(result.Candidates),
		AllocatedRows:        len(result.Allocated),
		GeneratorRows:        len(result.Generators),
		Tiers:                tiers,
		Diagnostics:          result.Diagnostics.Counts(),
		UnallocatedFuelMMBtu: result.Diagnostics.UnallocatedFuelMMBtu(),
		DriftGroups:          result.Diagnostics.DriftGroups(),
		MaxDrift:             result.Diagnostics.MaxDrift(),
		Thresholds:           thresholds,
	}
}

func writeReports(outDir string, result *allocation.Result, summary Summary) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := writeAllocated(filepath.Join(outDir, FileAllocated), result.Allocated); err != nil {
		return err
	}
	if err := writeGeneratorTotals(filepath.Join(outDir, FileGenerators), result.Generators); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(outDir, FileDiagnostics), result.Diagnostics); err != nil {
		return err
	}
	return writeJSON(filepath.Join(outDir, FileSummary), summary)
}

func writeArchive(outDir string) (string, error) {
	archivePath := filepath.Join(outDir, FileArchive)
	file, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	for _, name := range []string{FileAllocated, FileGenerators, FileDiagnostics, FileSummary} {
		path := filepath.Join(outDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		fw, err := zipWriter.Create(name)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if _, err := fw.Write(data); err != nil {
			return "", err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return "", err
	}
	return archivePath, nil
}

// AllocatedHeader is the column layout of allocated.csv.
var AllocatedHeader = []string{
	"plant_id_eia",
	"generator_id",
	"prime_mover_code",
	"energy_source_code",
	"report_date",
	"net_generation_mwh",
	"fuel_consumed_mmbtu",
	"fraction",
	"tier",
}

// WriteAllocatedCSV writes allocated rows with AllocatedHeader.
func WriteAllocatedCSV(w io.Writer, rows []allocation.AllocatedRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(AllocatedHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.Itoa(row.PlantID),
			row.GeneratorID,
			row.PrimeMover,
			row.FuelType,
			allocation.FormatMonth(row.Month),
			formatOptionalFloat(row.NetGenerationMWh),
			formatOptionalFloat(row.FuelConsumedMMBtu),
			formatFloat(row.Fraction),
			string(row.Tier),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadAllocatedCSV parses rows written by WriteAllocatedCSV.
func ReadAllocatedCSV(r io.Reader) ([]allocation.AllocatedRecord, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("allocation report: empty allocated table")
	}
	out := make([]allocation.AllocatedRecord, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(AllocatedHeader) {
			return nil, fmt.Errorf("allocation report: row %d has %d fields", i, len(rec))
		}
		plantID, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("allocation report: row %d: %w", i, err)
		}
		month, err := time.Parse(allocation.MonthKeyLayout, rec[4])
		if err != nil {
			return nil, fmt.Errorf("allocation report: row %d: %w", i, err)
		}
		netgen, err := parseOptionalFloat(rec[5])
		if err != nil {
			return nil, fmt.Errorf("allocation report: row %d: %w", i, err)
		}
		fuel, err := parseOptionalFloat(rec[6])
		if err != nil {
			return nil, fmt.Errorf("allocation report: row %d: %w", i, err)
		}
		fraction, err := strconv.ParseFloat(rec[7], 64)
		if err != nil {
			return nil, fmt.Errorf("allocation report: row %d: %w", i, err)
		}
		out = append(out, allocation.AllocatedRecord{
			PlantID:           plantID,
			GeneratorID:       rec[1],
			PrimeMover:        rec[2],
			FuelType:          rec[3],
			Month:             month,
			NetGenerationMWh:  netgen,
			FuelConsumedMMBtu: fuel,
			Fraction:          fraction,
			Tier:              allocation.FallbackTier(rec[8]),
		})
	}
	return out, nil
}

// readArchiveRows extracts allocated.csv from a report archive.
func readArchiveRows(data []byte) ([]allocation.AllocatedRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name != FileAllocated {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return ReadAllocatedCSV(rc)
	}
	return nil, fmt.Errorf("allocation report: archive has no %s", FileAllocated)
}

func parseOptionalFloat(value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return allocation.Float(f), nil
}

func writeAllocated(path string, rows []allocation.AllocatedRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteAllocatedCSV(file, rows)
}

func writeGeneratorTotals(path string, rows []allocation.GeneratorMonthlyTotal) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"plant_id_eia",
		"generator_id",
		"report_date",
		"net_generation_mwh",
		"fuel_consumed_mmbtu",
		"reported_net_generation_mwh",
		"boiler_fuel_mmbtu",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.Itoa(row.PlantID),
			row.GeneratorID,
			allocation.FormatMonth(row.Month),
			formatOptionalFloat(row.NetGenerationMWh),
			formatOptionalFloat(row.FuelConsumedMMBtu),
			formatOptionalFloat(row.ReportedNetGenerationMWh),
			formatOptionalFloat(row.BoilerFuelMMBtu),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatOptionalFloat(value *float64) string {
	if value == nil {
		return ""
	}
	return formatFloat(*value)
}

func openLocal(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, allocation.ErrReportNotFound
		}
		return nil, err
	}
	return file, nil
}
