package allocation

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultTolerance bounds the fraction-sum deviation and the relative
// deviation of allocated totals before a drift is reported.
const DefaultTolerance = 1e-6

// AllocatedRecord is the final output row, unique per (plant, generator,
// prime mover, fuel type, month).
type AllocatedRecord struct {
	PlantID           int          `json:"plant_id"`
	GeneratorID       string       `json:"generator_id"`
	PrimeMover        string       `json:"prime_mover_code"`
	FuelType          string       `json:"energy_source_code"`
	Month             time.Time    `json:"report_date"`
	NetGenerationMWh  *float64     `json:"net_generation_mwh"`
	FuelConsumedMMBtu *float64     `json:"fuel_consumed_mmbtu"`
	Fraction          float64      `json:"fraction"`
	Tier              FallbackTier `json:"tier"`
}

// Group returns the allocation group of the record.
func (r AllocatedRecord) Group() GroupKey {
	return GroupKey{PlantID: r.PlantID, PrimeMover: r.PrimeMover, FuelType: r.FuelType, Month: r.Month}
}

// ApplyResult holds the allocated rows and any reconciliation drift.
type ApplyResult struct {
	Records []AllocatedRecord
	Drifts  []ReconciliationDrift
}

// Apply multiplies the group totals by each member's fraction and checks that
// every group still sums to its totals. A drift is reported, never fatal.
func Apply(rows []FractionRow, tolerance float64, workers int) ApplyResult {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	keys, groups := partitionFractions(rows)
	records := make([][]AllocatedRecord, len(keys))
	drifts := make([][]ReconciliationDrift, len(keys))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			records[i], drifts[i] = applyGroup(key, groups[key], tolerance)
			return nil
		})
	}
	_ = g.Wait()

	var res ApplyResult
	for i := range keys {
		res.Records = append(res.Records, records[i]...)
		res.Drifts = append(res.Drifts, drifts[i]...)
	}
	return res
}

func partitionFractions(rows []FractionRow) ([]GroupKey, map[GroupKey][]FractionRow) {
	groups := make(map[GroupKey][]FractionRow)
	var keys []GroupKey
	for _, r := range rows {
		key := r.Group()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], r)
	}
	sortGroupKeys(keys)
	return keys, groups
}

func applyGroup(key GroupKey, members []FractionRow, tolerance float64) ([]AllocatedRecord, []ReconciliationDrift) {
	out := make([]AllocatedRecord, len(members))
	fractionSum := decimal.Zero
	netSum, fuelSum := decimal.Zero, decimal.Zero
	for i, m := range members {
		rec := AllocatedRecord{
			PlantID:           m.PlantID,
			GeneratorID:       m.GeneratorID,
			PrimeMover:        m.PrimeMover,
			FuelType:          m.EnergySource,
			Month:             m.Month,
			NetGenerationMWh:  scaleNullable(m.GroupNetGenerationMWh, m.Fraction),
			FuelConsumedMMBtu: scaleNullable(m.GroupFuelConsumedMMBtu, m.Fraction),
			Fraction:          m.Fraction,
			Tier:              m.Tier,
		}
		fractionSum = fractionSum.Add(decimal.NewFromFloat(m.Fraction))
		if rec.NetGenerationMWh != nil {
			netSum = netSum.Add(decimal.NewFromFloat(*rec.NetGenerationMWh))
		}
		if rec.FuelConsumedMMBtu != nil {
			fuelSum = fuelSum.Add(decimal.NewFromFloat(*rec.FuelConsumedMMBtu))
		}
		out[i] = rec
	}

	var drifts []ReconciliationDrift
	tol := decimal.NewFromFloat(tolerance)
	one := decimal.NewFromInt(1)
	if fractionSum.Sub(one).Abs().GreaterThan(tol) {
		drifts = append(drifts, ReconciliationDrift{Key: key, Measure: MeasureFraction, Expected: 1, Actual: fractionSum.InexactFloat64()})
	}
	first := members[0]
	if d, ok := totalDrift(key, MeasureNetGeneration, first.GroupNetGenerationMWh, netSum, tol); ok {
		drifts = append(drifts, d)
	}
	if d, ok := totalDrift(key, MeasureFuelConsumed, first.GroupFuelConsumedMMBtu, fuelSum, tol); ok {
		drifts = append(drifts, d)
	}
	return out, drifts
}

// totalDrift compares an allocated sum to its group total using a tolerance
// relative to the total, or absolute when the total is below one.
func totalDrift(key GroupKey, measure string, total *float64, sum decimal.Decimal, tol decimal.Decimal) (ReconciliationDrift, bool) {
	if total == nil {
		return ReconciliationDrift{}, false
	}
	expected := decimal.NewFromFloat(*total)
	scale := expected.Abs()
	if scale.LessThan(decimal.NewFromInt(1)) {
		scale = decimal.NewFromInt(1)
	}
	if sum.Sub(expected).Abs().LessThanOrEqual(tol.Mul(scale)) {
		return ReconciliationDrift{}, false
	}
	return ReconciliationDrift{Key: key, Measure: measure, Expected: *total, Actual: sum.InexactFloat64()}, true
}
