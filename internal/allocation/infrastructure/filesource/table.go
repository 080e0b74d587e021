package filesource

import (
	"strconv"
	"strings"
	"time"

	allocation "netgen-allocation/internal/allocation/domain"
)

// table is a header row plus data rows, read from a CSV file or a sheet.
type table struct {
	name    string
	columns map[string]int
	rows    [][]string
}

func newTable(name string, records [][]string) (*table, error) {
	if len(records) == 0 {
		return nil, &allocation.SchemaViolation{Table: name, Row: -1, Reason: "missing header row"}
	}
	columns := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return &table{name: name, columns: columns, rows: records[1:]}, nil
}

func (t *table) require(columns ...string) error {
	for _, c := range columns {
		if _, ok := t.columns[c]; !ok {
			return &allocation.SchemaViolation{Table: t.name, Column: c, Row: -1, Reason: "missing column"}
		}
	}
	return nil
}

func (t *table) cell(row int, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(t.rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.rows[row][idx])
}

func (t *table) invalid(row int, column, value, kind string) error {
	return &allocation.SchemaViolation{Table: t.name, Column: column, Row: row, Reason: "cannot parse " + strconv.Quote(value) + " as " + kind}
}

func (t *table) integer(row int, column string) (int, error) {
	value := t.cell(row, column)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		// Spreadsheets store whole numbers as floats.
		f, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, t.invalid(row, column, value, "integer")
		}
		n = int(f)
	}
	return n, nil
}

func (t *table) float(row int, column string) (*float64, error) {
	value := t.cell(row, column)
	if value == "" || strings.EqualFold(value, "nan") || strings.EqualFold(value, "null") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, t.invalid(row, column, value, "number")
	}
	return allocation.Float(f), nil
}

var dateLayouts = []string{"2006-01-02", "2006-01", time.RFC3339, "2006-01-02 15:04:05", "01/02/2006", "1/2/06"}

func (t *table) date(row int, column string) (*time.Time, error) {
	value := t.cell(row, column)
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			parsed = parsed.UTC()
			return &parsed, nil
		}
	}
	return nil, t.invalid(row, column, value, "date")
}

func (t *table) month(row int, column string) (time.Time, error) {
	d, err := t.date(row, column)
	if err != nil || d == nil {
		return time.Time{}, err
	}
	return allocation.MonthStart(*d), nil
}

func (t *table) frequency(row int) (allocation.Frequency, error) {
	value := t.cell(row, "frequency")
	freq, ok := allocation.ParseFrequency(value)
	if !ok {
		return "", &allocation.SchemaViolation{Table: t.name, Column: "frequency", Row: row, Reason: "unknown reporting frequency " + strconv.Quote(value)}
	}
	return freq, nil
}

func parseGenerators(t *table) ([]allocation.GeneratorRecord, error) {
	if err := t.require("plant_id_eia", "generator_id", "report_date", "prime_mover_code", "capacity_mw", "energy_source_code_1"); err != nil {
		return nil, err
	}
	out := make([]allocation.GeneratorRecord, 0, len(t.rows))
	for i := range t.rows {
		var g allocation.GeneratorRecord
		var err error
		if g.PlantID, err = t.integer(i, "plant_id_eia"); err != nil {
			return nil, err
		}
		g.GeneratorID = t.cell(i, "generator_id")
		reportDate, err := t.date(i, "report_date")
		if err != nil {
			return nil, err
		}
		if reportDate != nil {
			g.ReportDate = *reportDate
		}
		g.PrimeMover = t.cell(i, "prime_mover_code")
		if g.CapacityMW, err = t.float(i, "capacity_mw"); err != nil {
			return nil, err
		}
		if g.FuelTypeCount, err = t.integer(i, "fuel_type_count"); err != nil {
			return nil, err
		}
		if g.RetirementDate, err = t.date(i, "retirement_date"); err != nil {
			return nil, err
		}
		g.OperationalStatus = t.cell(i, "operational_status")
		for slot := 1; slot <= allocation.MaxEnergySourceSlots; slot++ {
			if code := t.cell(i, "energy_source_code_"+strconv.Itoa(slot)); code != "" {
				g.EnergySources = append(g.EnergySources, allocation.EnergySourceSlot{Slot: slot, Code: code})
			}
		}
		out = append(out, g)
	}
	return out, nil
}

func parseGeneration(t *table) ([]allocation.GeneratorMonthlyReport, error) {
	if err := t.require("plant_id_eia", "generator_id", "report_date", "net_generation_mwh"); err != nil {
		return nil, err
	}
	out := make([]allocation.GeneratorMonthlyReport, 0, len(t.rows))
	for i := range t.rows {
		var r allocation.GeneratorMonthlyReport
		var err error
		if r.PlantID, err = t.integer(i, "plant_id_eia"); err != nil {
			return nil, err
		}
		r.GeneratorID = t.cell(i, "generator_id")
		if r.Month, err = t.month(i, "report_date"); err != nil {
			return nil, err
		}
		if r.NetGenerationMWh, err = t.float(i, "net_generation_mwh"); err != nil {
			return nil, err
		}
		if r.Frequency, err = t.frequency(i); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseGenerationFuel(t *table) ([]allocation.FuelTypeMonthlyAggregate, error) {
	if err := t.require("plant_id_eia", "prime_mover_code", "energy_source_code", "report_date", "net_generation_mwh", "fuel_consumed_mmbtu"); err != nil {
		return nil, err
	}
	out := make([]allocation.FuelTypeMonthlyAggregate, 0, len(t.rows))
	for i := range t.rows {
		var a allocation.FuelTypeMonthlyAggregate
		var err error
		if a.PlantID, err = t.integer(i, "plant_id_eia"); err != nil {
			return nil, err
		}
		a.PrimeMover = t.cell(i, "prime_mover_code")
		a.FuelType = t.cell(i, "energy_source_code")
		if a.Month, err = t.month(i, "report_date"); err != nil {
			return nil, err
		}
		if a.NetGenerationMWh, err = t.float(i, "net_generation_mwh"); err != nil {
			return nil, err
		}
		if a.FuelConsumedMMBtu, err = t.float(i, "fuel_consumed_mmbtu"); err != nil {
			return nil, err
		}
		if a.Frequency, err = t.frequency(i); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func parseBoilerFuel(t *table) ([]allocation.BoilerFuelReport, error) {
	if err := t.require("plant_id_eia", "boiler_id", "energy_source_code", "prime_mover_code", "report_date", "fuel_consumed_mmbtu"); err != nil {
		return nil, err
	}
	out := make([]allocation.BoilerFuelReport, 0, len(t.rows))
	for i := range t.rows {
		var b allocation.BoilerFuelReport
		var err error
		if b.PlantID, err = t.integer(i, "plant_id_eia"); err != nil {
			return nil, err
		}
		b.BoilerID = t.cell(i, "boiler_id")
		b.EnergySource = t.cell(i, "energy_source_code")
		b.PrimeMover = t.cell(i, "prime_mover_code")
		if b.Month, err = t.month(i, "report_date"); err != nil {
			return nil, err
		}
		if b.FuelConsumedMMBtu, err = t.float(i, "fuel_consumed_mmbtu"); err != nil {
			return nil, err
		}
		if b.Frequency, err = t.frequency(i); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func parseBoilerGenerators(t *table) ([]allocation.BoilerGeneratorAssociation, error) {
	if err := t.require("plant_id_eia", "boiler_id", "generator_id"); err != nil {
		return nil, err
	}
	out := make([]allocation.BoilerGeneratorAssociation, 0, len(t.rows))
	for i := range t.rows {
		var a allocation.BoilerGeneratorAssociation
		var err error
		if a.PlantID, err = t.integer(i, "plant_id_eia"); err != nil {
			return nil, err
		}
		a.BoilerID = t.cell(i, "boiler_id")
		a.GeneratorID = t.cell(i, "generator_id")
		out = append(out, a)
	}
	return out, nil
}

// parseInputs builds the typed inputs from the five tables. A nil table is
// treated as empty.
func parseInputs(tables map[string]*table) (allocation.Inputs, error) {
	var in allocation.Inputs
	var err error
	if t := tables[allocation.TableGenerators]; t != nil {
		if in.Generators, err = parseGenerators(t); err != nil {
			return allocation.Inputs{}, err
		}
	}
	if t := tables[allocation.TableGeneration]; t != nil {
		if in.GeneratorReports, err = parseGeneration(t); err != nil {
			return allocation.Inputs{}, err
		}
	}
	if t := tables[allocation.TableGenerationFuel]; t != nil {
		if in.FuelAggregates, err = parseGenerationFuel(t); err != nil {
			return allocation.Inputs{}, err
		}
	}
	if t := tables[allocation.TableBoilerFuel]; t != nil {
		if in.BoilerFuel, err = parseBoilerFuel(t); err != nil {
			return allocation.Inputs{}, err
		}
	}
	if t := tables[allocation.TableBoilerGenerators]; t != nil {
		if in.BoilerGenerators, err = parseBoilerGenerators(t); err != nil {
			return allocation.Inputs{}, err
		}
	}
	return in, nil
}

// TableNames lists the input tables in load order.
var TableNames = []string{
	allocation.TableGenerators,
	allocation.TableGeneration,
	allocation.TableGenerationFuel,
	allocation.TableBoilerFuel,
	allocation.TableBoilerGenerators,
}
