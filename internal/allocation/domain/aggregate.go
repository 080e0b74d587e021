package allocation

import (
	"sort"
	"time"
)

// GeneratorMonthlyTotal is the allocated output of one generator in one
// month, summed over its energy sources. Reported values are carried along
// for comparison.
type GeneratorMonthlyTotal struct {
	PlantID                  int       `json:"plant_id"`
	GeneratorID              string    `json:"generator_id"`
	Month                    time.Time `json:"report_date"`
	NetGenerationMWh         *float64  `json:"net_generation_mwh"`
	FuelConsumedMMBtu        *float64  `json:"fuel_consumed_mmbtu"`
	ReportedNetGenerationMWh *float64  `json:"reported_net_generation_mwh"`
	BoilerFuelMMBtu          *float64  `json:"boiler_fuel_mmbtu"`
}

// AggregateByGenerator sums allocated rows per generator and month. Every
// roster entry appears in the output; one without allocated rows keeps nil
// values so "not allocable" is distinguishable from zero.
func AggregateByGenerator(records []AllocatedRecord, roster []GeneratorMonth) []GeneratorMonthlyTotal {
	totals := make(map[GeneratorMonthKey]*GeneratorMonthlyTotal, len(roster))
	ensure := func(k GeneratorMonthKey) *GeneratorMonthlyTotal {
		t, ok := totals[k]
		if !ok {
			t = &GeneratorMonthlyTotal{PlantID: k.PlantID, GeneratorID: k.GeneratorID, Month: k.Month}
			totals[k] = t
		}
		return t
	}
	for _, g := range roster {
		t := ensure(g.key())
		t.ReportedNetGenerationMWh = copyNullable(g.ReportedNetGenerationMWh)
		t.BoilerFuelMMBtu = copyNullable(g.BoilerFuelMMBtu)
	}
	for _, r := range records {
		t := ensure(GeneratorMonthKey{PlantID: r.PlantID, GeneratorID: r.GeneratorID, Month: r.Month})
		t.NetGenerationMWh = addNullable(t.NetGenerationMWh, r.NetGenerationMWh)
		t.FuelConsumedMMBtu = addNullable(t.FuelConsumedMMBtu, r.FuelConsumedMMBtu)
	}

	keys := make([]GeneratorMonthKey, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	out := make([]GeneratorMonthlyTotal, len(keys))
	for i, k := range keys {
		out[i] = *totals[k]
	}
	return out
}
