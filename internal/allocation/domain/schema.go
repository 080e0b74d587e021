package allocation

import (
	"math"
	"strings"
	"time"
)

// Table names used in schema violations and by the loaders.
const (
	TableGenerators       = "generators"
	TableGeneration       = "generation"
	TableGenerationFuel   = "generation_fuel"
	TableBoilerFuel       = "boiler_fuel"
	TableBoilerGenerators = "boiler_generators"
)

// Validate checks the typed input tables for missing keys, bad values and
// duplicate keys. The first problem found is returned as a *SchemaViolation.
func Validate(in Inputs) error {
	if err := validateGenerators(in.Generators); err != nil {
		return err
	}
	if err := validateGeneratorReports(in.GeneratorReports); err != nil {
		return err
	}
	if err := validateFuelAggregates(in.FuelAggregates); err != nil {
		return err
	}
	if err := validateBoilerFuel(in.BoilerFuel); err != nil {
		return err
	}
	return validateBoilerGenerators(in.BoilerGenerators)
}

func validateGenerators(rows []GeneratorRecord) error {
	type key struct {
		plantID     int
		generatorID string
		year        int
	}
	seen := make(map[key]int, len(rows))
	for i, g := range rows {
		if err := checkPlantID(TableGenerators, i, g.PlantID); err != nil {
			return err
		}
		if strings.TrimSpace(g.GeneratorID) == "" {
			return violation(TableGenerators, "generator_id", i, "empty generator id")
		}
		if g.ReportDate.IsZero() {
			return violation(TableGenerators, "report_date", i, "missing report date")
		}
		if strings.TrimSpace(g.PrimeMover) == "" {
			return violation(TableGenerators, "prime_mover_code", i, "empty prime mover code")
		}
		if g.CapacityMW != nil && (*g.CapacityMW < 0 || !finite(*g.CapacityMW)) {
			return violation(TableGenerators, "capacity_mw", i, "capacity %v must be a finite non-negative number", *g.CapacityMW)
		}
		if g.FuelTypeCount < 0 {
			return violation(TableGenerators, "fuel_type_count", i, "negative fuel type count %d", g.FuelTypeCount)
		}
		slots := make(map[int]struct{}, len(g.EnergySources))
		for _, s := range g.EnergySources {
			if s.Slot < 1 || s.Slot > MaxEnergySourceSlots {
				return violation(TableGenerators, "energy_source_code", i, "slot %d outside 1..%d", s.Slot, MaxEnergySourceSlots)
			}
			if _, dup := slots[s.Slot]; dup {
				return violation(TableGenerators, "energy_source_code", i, "slot %d declared twice", s.Slot)
			}
			slots[s.Slot] = struct{}{}
		}
		k := key{plantID: g.PlantID, generatorID: g.GeneratorID, year: g.ReportDate.Year()}
		if first, dup := seen[k]; dup {
			return violation(TableGenerators, "generator_id", i, "duplicate record for plant %d generator %s year %d (first at row %d)", g.PlantID, g.GeneratorID, k.year, first)
		}
		seen[k] = i
	}
	return nil
}

func validateGeneratorReports(rows []GeneratorMonthlyReport) error {
	seen := make(map[GeneratorMonthKey]int, len(rows))
	for i, r := range rows {
		if err := checkPlantID(TableGeneration, i, r.PlantID); err != nil {
			return err
		}
		if strings.TrimSpace(r.GeneratorID) == "" {
			return violation(TableGeneration, "generator_id", i, "empty generator id")
		}
		if err := checkMonth(TableGeneration, i, r.Month, r.Frequency); err != nil {
			return err
		}
		if err := checkValue(TableGeneration, "net_generation_mwh", i, r.NetGenerationMWh); err != nil {
			return err
		}
		k := GeneratorMonthKey{PlantID: r.PlantID, GeneratorID: r.GeneratorID, Month: MonthStart(r.Month)}
		if first, dup := seen[k]; dup {
			return violation(TableGeneration, "report_date", i, "duplicate report for plant %d generator %s month %s (first at row %d)", r.PlantID, r.GeneratorID, FormatMonth(k.Month), first)
		}
		seen[k] = i
	}
	return nil
}

func validateFuelAggregates(rows []FuelTypeMonthlyAggregate) error {
	seen := make(map[GroupKey]int, len(rows))
	for i, a := range rows {
		if err := checkPlantID(TableGenerationFuel, i, a.PlantID); err != nil {
			return err
		}
		if strings.TrimSpace(a.PrimeMover) == "" {
			return violation(TableGenerationFuel, "prime_mover_code", i, "empty prime mover code")
		}
		if strings.TrimSpace(a.FuelType) == "" {
			return violation(TableGenerationFuel, "fuel_type", i, "empty fuel type")
		}
		if err := checkMonth(TableGenerationFuel, i, a.Month, a.Frequency); err != nil {
			return err
		}
		if err := checkValue(TableGenerationFuel, "net_generation_mwh", i, a.NetGenerationMWh); err != nil {
			return err
		}
		if err := checkValue(TableGenerationFuel, "fuel_consumed_mmbtu", i, a.FuelConsumedMMBtu); err != nil {
			return err
		}
		k := GroupKey{PlantID: a.PlantID, PrimeMover: a.PrimeMover, FuelType: a.FuelType, Month: MonthStart(a.Month)}
		if first, dup := seen[k]; dup {
			return violation(TableGenerationFuel, "report_date", i, "duplicate aggregate for %s (first at row %d)", k, first)
		}
		seen[k] = i
	}
	return nil
}

func validateBoilerFuel(rows []BoilerFuelReport) error {
	type key struct {
		boiler BoilerKey
		month  time.Time
	}
	seen := make(map[key]int, len(rows))
	for i, b := range rows {
		if err := checkPlantID(TableBoilerFuel, i, b.PlantID); err != nil {
			return err
		}
		if strings.TrimSpace(b.BoilerID) == "" {
			return violation(TableBoilerFuel, "boiler_id", i, "empty boiler id")
		}
		if strings.TrimSpace(b.EnergySource) == "" {
			return violation(TableBoilerFuel, "energy_source_code", i, "empty energy source code")
		}
		if strings.TrimSpace(b.PrimeMover) == "" {
			return violation(TableBoilerFuel, "prime_mover_code", i, "empty prime mover code")
		}
		if err := checkMonth(TableBoilerFuel, i, b.Month, b.Frequency); err != nil {
			return err
		}
		if err := checkValue(TableBoilerFuel, "fuel_consumed_mmbtu", i, b.FuelConsumedMMBtu); err != nil {
			return err
		}
		k := key{
			boiler: BoilerKey{PlantID: b.PlantID, BoilerID: b.BoilerID, EnergySource: b.EnergySource, PrimeMover: b.PrimeMover},
			month:  MonthStart(b.Month),
		}
		if first, dup := seen[k]; dup {
			return violation(TableBoilerFuel, "report_date", i, "duplicate fuel report for boiler %s month %s (first at row %d)", b.BoilerID, FormatMonth(k.month), first)
		}
		seen[k] = i
	}
	return nil
}

func validateBoilerGenerators(rows []BoilerGeneratorAssociation) error {
	for i, a := range rows {
		if err := checkPlantID(TableBoilerGenerators, i, a.PlantID); err != nil {
			return err
		}
		if strings.TrimSpace(a.BoilerID) == "" {
			return violation(TableBoilerGenerators, "boiler_id", i, "empty boiler id")
		}
		if strings.TrimSpace(a.GeneratorID) == "" {
			return violation(TableBoilerGenerators, "generator_id", i, "empty generator id")
		}
	}
	return nil
}

func checkPlantID(table string, row, plantID int) error {
	if plantID <= 0 {
		return violation(table, "plant_id_eia", row, "plant id %d must be positive", plantID)
	}
	return nil
}

func checkMonth(table string, row int, month time.Time, freq Frequency) error {
	if month.IsZero() {
		return violation(table, "report_date", row, "missing report date")
	}
	if _, ok := ParseFrequency(string(freq)); !ok {
		return violation(table, "frequency", row, "unknown reporting frequency %q", string(freq))
	}
	return nil
}

func checkValue(table, column string, row int, v *float64) error {
	if v != nil && !finite(*v) {
		return violation(table, column, row, "value %v is not finite", *v)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
