package allocation

import "time"

// PeriodRecord is one reported row of a keyed series. Values holds one entry
// per data column; nil means not reported.
type PeriodRecord[K comparable] struct {
	Key       K
	Month     time.Time
	Frequency Frequency
	Values    []*float64
}

// DistributeAnnually spreads annually reported values evenly over the twelve
// months of their year.
//
// Rows are grouped by (key, calendar year). A group is annual when any of its
// rows was filed with FrequencyAnnual; the row count is irrelevant. Each
// column of an annual group is summed over its non-null values and replaced
// by twelve monthly rows carrying total/12. A column that is null everywhere
// stays null, and a group with no value at all is passed through. Monthly
// groups are returned unchanged. The input slice is not modified.
func DistributeAnnually[K comparable](records []PeriodRecord[K]) []PeriodRecord[K] {
	type yearKey struct {
		key  K
		year int
	}
	order := make([]yearKey, 0)
	groups := make(map[yearKey][]int)
	for i, rec := range records {
		yk := yearKey{key: rec.Key, year: rec.Month.Year()}
		if _, ok := groups[yk]; !ok {
			order = append(order, yk)
		}
		groups[yk] = append(groups[yk], i)
	}

	out := make([]PeriodRecord[K], 0, len(records))
	for _, yk := range order {
		idx := groups[yk]
		totals, annual := annualTotals(records, idx)
		if !annual {
			for _, i := range idx {
				out = append(out, copyRecord(records[i]))
			}
			continue
		}
		for _, month := range MonthsOfYear(yk.year) {
			values := make([]*float64, len(totals))
			for c, total := range totals {
				if total != nil {
					values[c] = Float(*total / 12)
				}
			}
			out = append(out, PeriodRecord[K]{
				Key:       yk.key,
				Month:     month,
				Frequency: FrequencyMonthly,
				Values:    values,
			})
		}
	}
	return out
}

func annualTotals[K comparable](records []PeriodRecord[K], idx []int) ([]*float64, bool) {
	annual := false
	width := 0
	for _, i := range idx {
		if records[i].Frequency.IsAnnual() {
			annual = true
		}
		if len(records[i].Values) > width {
			width = len(records[i].Values)
		}
	}
	if !annual {
		return nil, false
	}
	totals := make([]*float64, width)
	reported := false
	for _, i := range idx {
		for c, v := range records[i].Values {
			if v == nil {
				continue
			}
			totals[c] = addNullable(totals[c], v)
			reported = true
		}
	}
	return totals, reported
}

func copyRecord[K comparable](rec PeriodRecord[K]) PeriodRecord[K] {
	values := make([]*float64, len(rec.Values))
	for i, v := range rec.Values {
		if v != nil {
			values[i] = Float(*v)
		}
	}
	rec.Values = values
	return rec
}

// Prepare normalizes every month to its canonical month start and spreads
// annually reported boiler fuel, fuel-type aggregates and generator reports
// over their months. It returns new slices.
func Prepare(in Inputs) Inputs {
	out := Inputs{
		Generators:       make([]GeneratorRecord, len(in.Generators)),
		BoilerGenerators: append([]BoilerGeneratorAssociation(nil), in.BoilerGenerators...),
	}
	for i, g := range in.Generators {
		g.ReportDate = MonthStart(g.ReportDate)
		g.EnergySources = append([]EnergySourceSlot(nil), g.EnergySources...)
		out.Generators[i] = g
	}
	out.BoilerFuel = distributeBoilerFuel(in.BoilerFuel)
	out.FuelAggregates = distributeFuelAggregates(in.FuelAggregates)
	out.GeneratorReports = distributeGeneratorReports(in.GeneratorReports)
	return out
}

func distributeBoilerFuel(rows []BoilerFuelReport) []BoilerFuelReport {
	records := make([]PeriodRecord[BoilerKey], len(rows))
	for i, r := range rows {
		records[i] = PeriodRecord[BoilerKey]{
			Key:       BoilerKey{PlantID: r.PlantID, BoilerID: r.BoilerID, EnergySource: r.EnergySource, PrimeMover: r.PrimeMover},
			Month:     MonthStart(r.Month),
			Frequency: r.Frequency,
			Values:    []*float64{r.FuelConsumedMMBtu},
		}
	}
	spread := DistributeAnnually(records)
	out := make([]BoilerFuelReport, len(spread))
	for i, rec := range spread {
		out[i] = BoilerFuelReport{
			PlantID:           rec.Key.PlantID,
			BoilerID:          rec.Key.BoilerID,
			EnergySource:      rec.Key.EnergySource,
			PrimeMover:        rec.Key.PrimeMover,
			Month:             rec.Month,
			FuelConsumedMMBtu: rec.Values[0],
			Frequency:         rec.Frequency,
		}
	}
	return out
}

type fuelSeriesKey struct {
	PlantID    int
	PrimeMover string
	FuelType   string
}

func distributeFuelAggregates(rows []FuelTypeMonthlyAggregate) []FuelTypeMonthlyAggregate {
	records := make([]PeriodRecord[fuelSeriesKey], len(rows))
	for i, r := range rows {
		records[i] = PeriodRecord[fuelSeriesKey]{
			Key:       fuelSeriesKey{PlantID: r.PlantID, PrimeMover: r.PrimeMover, FuelType: r.FuelType},
			Month:     MonthStart(r.Month),
			Frequency: r.Frequency,
			Values:    []*float64{r.NetGenerationMWh, r.FuelConsumedMMBtu},
		}
	}
	spread := DistributeAnnually(records)
	out := make([]FuelTypeMonthlyAggregate, len(spread))
	for i, rec := range spread {
		out[i] = FuelTypeMonthlyAggregate{
			PlantID:           rec.Key.PlantID,
			PrimeMover:        rec.Key.PrimeMover,
			FuelType:          rec.Key.FuelType,
			Month:             rec.Month,
			NetGenerationMWh:  rec.Values[0],
			FuelConsumedMMBtu: rec.Values[1],
			Frequency:         rec.Frequency,
		}
	}
	return out
}

func distributeGeneratorReports(rows []GeneratorMonthlyReport) []GeneratorMonthlyReport {
	records := make([]PeriodRecord[generatorKey], len(rows))
	for i, r := range rows {
		records[i] = PeriodRecord[generatorKey]{
			Key:       generatorKey{PlantID: r.PlantID, GeneratorID: r.GeneratorID},
			Month:     MonthStart(r.Month),
			Frequency: r.Frequency,
			Values:    []*float64{r.NetGenerationMWh},
		}
	}
	spread := DistributeAnnually(records)
	out := make([]GeneratorMonthlyReport, len(spread))
	for i, rec := range spread {
		out[i] = GeneratorMonthlyReport{
			PlantID:          rec.Key.PlantID,
			GeneratorID:      rec.Key.GeneratorID,
			Month:            rec.Month,
			NetGenerationMWh: rec.Values[0],
			Frequency:        rec.Frequency,
		}
	}
	return out
}
