package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	allocation "netgen-allocation/internal/allocation/domain"
)

// Source loads the input tables of a scope from Postgres.
type Source struct {
	db *sql.DB
}

// NewSource constructs a Source.
func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

// Load reads the five input tables. Year filtering happens in SQL, plant
// filtering on the loaded rows.
func (s *Source) Load(ctx context.Context, scope allocation.Scope) (allocation.Inputs, error) {
	if s == nil || s.db == nil {
		return allocation.Inputs{}, errNilDB
	}
	var in allocation.Inputs
	var err error
	if in.Generators, err = s.loadGenerators(ctx, scope.Year); err != nil {
		return allocation.Inputs{}, fmt.Errorf("%s: %w", allocation.TableGenerators, err)
	}
	if in.GeneratorReports, err = s.loadGeneration(ctx, scope.Year); err != nil {
		return allocation.Inputs{}, fmt.Errorf("%s: %w", allocation.TableGeneration, err)
	}
	if in.FuelAggregates, err = s.loadGenerationFuel(ctx, scope.Year); err != nil {
		return allocation.Inputs{}, fmt.Errorf("%s: %w", allocation.TableGenerationFuel, err)
	}
	if in.BoilerFuel, err = s.loadBoilerFuel(ctx, scope.Year); err != nil {
		return allocation.Inputs{}, fmt.Errorf("%s: %w", allocation.TableBoilerFuel, err)
	}
	if in.BoilerGenerators, err = s.loadBoilerGenerators(ctx); err != nil {
		return allocation.Inputs{}, fmt.Errorf("%s: %w", allocation.TableBoilerGenerators, err)
	}
	return scope.Filter(in), nil
}

func (s *Source) loadGenerators(ctx context.Context, year int) ([]allocation.GeneratorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT plant_id_eia, generator_id, report_date, prime_mover_code, capacity_mw, fuel_type_count,
	retirement_date, operational_status,
	energy_source_code_1, energy_source_code_2, energy_source_code_3,
	energy_source_code_4, energy_source_code_5, energy_source_code_6
FROM generators
WHERE $1 = 0 OR EXTRACT(YEAR FROM report_date) = $1
ORDER BY plant_id_eia, generator_id, report_date`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.GeneratorRecord
	for rows.Next() {
		var g allocation.GeneratorRecord
		var capacity sql.NullFloat64
		var retirement sql.NullTime
		var status sql.NullString
		var codes [allocation.MaxEnergySourceSlots]sql.NullString
		dest := []any{&g.PlantID, &g.GeneratorID, &g.ReportDate, &g.PrimeMover, &capacity, &g.FuelTypeCount, &retirement, &status}
		for i := range codes {
			dest = append(dest, &codes[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		g.ReportDate = g.ReportDate.UTC()
		g.CapacityMW = floatPtr(capacity)
		g.OperationalStatus = status.String
		if retirement.Valid {
			t := retirement.Time.UTC()
			g.RetirementDate = &t
		}
		for i, code := range codes {
			if code.Valid && code.String != "" {
				g.EnergySources = append(g.EnergySources, allocation.EnergySourceSlot{Slot: i + 1, Code: code.String})
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Source) loadGeneration(ctx context.Context, year int) ([]allocation.GeneratorMonthlyReport, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT plant_id_eia, generator_id, report_date, net_generation_mwh, frequency
FROM generation
WHERE $1 = 0 OR EXTRACT(YEAR FROM report_date) = $1
ORDER BY plant_id_eia, generator_id, report_date`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.GeneratorMonthlyReport
	for rows.Next() {
		var r allocation.GeneratorMonthlyReport
		var netgen sql.NullFloat64
		var freq sql.NullString
		if err := rows.Scan(&r.PlantID, &r.GeneratorID, &r.Month, &netgen, &freq); err != nil {
			return nil, err
		}
		r.Month = monthUTC(r.Month)
		r.NetGenerationMWh = floatPtr(netgen)
		r.Frequency = allocation.Frequency(freq.String)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Source) loadGenerationFuel(ctx context.Context, year int) ([]allocation.FuelTypeMonthlyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT plant_id_eia, prime_mover_code, energy_source_code, report_date,
	net_generation_mwh, fuel_consumed_mmbtu, frequency
FROM generation_fuel
WHERE $1 = 0 OR EXTRACT(YEAR FROM report_date) = $1
ORDER BY plant_id_eia, prime_mover_code, energy_source_code, report_date`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.FuelTypeMonthlyAggregate
	for rows.Next() {
		var a allocation.FuelTypeMonthlyAggregate
		var netgen, fuel sql.NullFloat64
		var freq sql.NullString
		if err := rows.Scan(&a.PlantID, &a.PrimeMover, &a.FuelType, &a.Month, &netgen, &fuel, &freq); err != nil {
			return nil, err
		}
		a.Month = monthUTC(a.Month)
		a.NetGenerationMWh = floatPtr(netgen)
		a.FuelConsumedMMBtu = floatPtr(fuel)
		a.Frequency = allocation.Frequency(freq.String)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Source) loadBoilerFuel(ctx context.Context, year int) ([]allocation.BoilerFuelReport, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT plant_id_eia, boiler_id, energy_source_code, prime_mover_code, report_date,
	fuel_consumed_mmbtu, frequency
FROM boiler_fuel
WHERE $1 = 0 OR EXTRACT(YEAR FROM report_date) = $1
ORDER BY plant_id_eia, boiler_id, energy_source_code, report_date`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.BoilerFuelReport
	for rows.Next() {
		var b allocation.BoilerFuelReport
		var fuel sql.NullFloat64
		var freq sql.NullString
		if err := rows.Scan(&b.PlantID, &b.BoilerID, &b.EnergySource, &b.PrimeMover, &b.Month, &fuel, &freq); err != nil {
			return nil, err
		}
		b.Month = monthUTC(b.Month)
		b.FuelConsumedMMBtu = floatPtr(fuel)
		b.Frequency = allocation.Frequency(freq.String)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Source) loadBoilerGenerators(ctx context.Context) ([]allocation.BoilerGeneratorAssociation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT plant_id_eia, boiler_id, generator_id
FROM boiler_generators
ORDER BY plant_id_eia, boiler_id, generator_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.BoilerGeneratorAssociation
	for rows.Next() {
		var a allocation.BoilerGeneratorAssociation
		if err := rows.Scan(&a.PlantID, &a.BoilerID, &a.GeneratorID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func monthUTC(t time.Time) time.Time {
	return allocation.MonthStart(t.UTC())
}
