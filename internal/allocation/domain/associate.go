package allocation

import (
	"sort"
	"time"
)

// Reasons attached to association diagnostics.
const (
	ReasonNoEnergySource       = "no energy source codes declared"
	ReasonNoBoilerAssociation  = "boiler has no associated generator"
	ReasonUndeclaredFuelSource = "no associated generator declares the energy source"
	ReasonUnclaimedAggregate   = "no operating generator declares the fuel type"
)

// CandidateRow links one generator energy-source slot in one month to the
// coarse totals it competes for.
type CandidateRow struct {
	PlantID      int
	GeneratorID  string
	PrimeMover   string
	EnergySource string
	Slot         int
	Month        time.Time

	// NetGenerationMWh is the generator's own report, nil when it does not
	// report individually.
	NetGenerationMWh *float64

	// HasAggregate is false when no fuel-type total exists for the group.
	HasAggregate           bool
	GroupNetGenerationMWh  *float64
	GroupFuelConsumedMMBtu *float64

	CapacityMW          *float64
	GroupGeneratorCount int
	FuelTypeCount       int

	// BoilerFuelMMBtu is this generator's share of the fuel of the boilers
	// feeding it for the same energy source and month.
	BoilerFuelMMBtu *float64
}

// Group returns the allocation group the candidate competes in.
func (c CandidateRow) Group() GroupKey {
	return GroupKey{PlantID: c.PlantID, PrimeMover: c.PrimeMover, FuelType: c.EnergySource, Month: c.Month}
}

// GeneratorMonth is a generator operating in a month, whether or not it has
// any candidate row. The aggregator reports every entry.
type GeneratorMonth struct {
	PlantID                  int
	GeneratorID              string
	Month                    time.Time
	ReportedNetGenerationMWh *float64
	BoilerFuelMMBtu          *float64
}

func (g GeneratorMonth) key() GeneratorMonthKey {
	return GeneratorMonthKey{PlantID: g.PlantID, GeneratorID: g.GeneratorID, Month: g.Month}
}

// Association is the output of Associate. It is owned by the caller and
// threaded into the later stages explicitly.
type Association struct {
	Candidates          []CandidateRow
	Roster              []GeneratorMonth
	MissingAssociations []MissingAssociation
	Unallocable         []UnallocableGenerator
	// Unclaimed are reported fuel-type totals no candidate competes for.
	Unclaimed []GroupIssue
}

type generatorFuelMonth struct {
	PlantID      int
	GeneratorID  string
	EnergySource string
	Month        time.Time
}

type plantBoiler struct {
	PlantID  int
	BoilerID string
}

// Associate fans every operating generator out to one candidate per declared
// energy source and month, and attaches the generator report, the fuel-type
// total and the boiler fuel for the same keys. It expects prepared inputs.
func Associate(in Inputs) Association {
	plantMonths := collectPlantMonths(in)

	reports := make(map[GeneratorMonthKey]*float64, len(in.GeneratorReports))
	for _, r := range in.GeneratorReports {
		reports[GeneratorMonthKey{PlantID: r.PlantID, GeneratorID: r.GeneratorID, Month: r.Month}] = r.NetGenerationMWh
	}

	aggregates := make(map[GroupKey]FuelTypeMonthlyAggregate, len(in.FuelAggregates))
	for _, a := range in.FuelAggregates {
		aggregates[GroupKey{PlantID: a.PlantID, PrimeMover: a.PrimeMover, FuelType: a.FuelType, Month: a.Month}] = a
	}

	boilerFuel, missing := attributeBoilerFuel(in)

	generators := append([]GeneratorRecord(nil), in.Generators...)
	sort.SliceStable(generators, func(i, j int) bool {
		if generators[i].PlantID != generators[j].PlantID {
			return generators[i].PlantID < generators[j].PlantID
		}
		if generators[i].GeneratorID != generators[j].GeneratorID {
			return generators[i].GeneratorID < generators[j].GeneratorID
		}
		return generators[i].ReportDate.Before(generators[j].ReportDate)
	})

	var out Association
	out.MissingAssociations = missing
	for _, gen := range generators {
		slots := gen.Slots()
		if len(slots) == 0 {
			out.Unallocable = append(out.Unallocable, UnallocableGenerator{
				PlantID:     gen.PlantID,
				GeneratorID: gen.GeneratorID,
				Year:        gen.Year(),
				Reason:      ReasonNoEnergySource,
			})
		}
		for _, month := range plantMonths[gen.PlantID] {
			if month.Year() != gen.Year() || !gen.OperatesIn(month) {
				continue
			}
			gmKey := GeneratorMonthKey{PlantID: gen.PlantID, GeneratorID: gen.GeneratorID, Month: month}
			roster := GeneratorMonth{
				PlantID:                  gen.PlantID,
				GeneratorID:              gen.GeneratorID,
				Month:                    month,
				ReportedNetGenerationMWh: copyNullable(reports[gmKey]),
			}
			for _, slot := range slots {
				group := GroupKey{PlantID: gen.PlantID, PrimeMover: gen.PrimeMover, FuelType: slot.Code, Month: month}
				agg, ok := aggregates[group]
				fuel := boilerFuel[generatorFuelMonth{PlantID: gen.PlantID, GeneratorID: gen.GeneratorID, EnergySource: slot.Code, Month: month}]
				roster.BoilerFuelMMBtu = addNullable(roster.BoilerFuelMMBtu, fuel)
				out.Candidates = append(out.Candidates, CandidateRow{
					PlantID:                gen.PlantID,
					GeneratorID:            gen.GeneratorID,
					PrimeMover:             gen.PrimeMover,
					EnergySource:           slot.Code,
					Slot:                   slot.Slot,
					Month:                  month,
					NetGenerationMWh:       copyNullable(reports[gmKey]),
					HasAggregate:           ok && (agg.NetGenerationMWh != nil || agg.FuelConsumedMMBtu != nil),
					GroupNetGenerationMWh:  copyNullable(agg.NetGenerationMWh),
					GroupFuelConsumedMMBtu: copyNullable(agg.FuelConsumedMMBtu),
					CapacityMW:             copyNullable(gen.CapacityMW),
					FuelTypeCount:          gen.FuelTypeCount,
					BoilerFuelMMBtu:        copyNullable(fuel),
				})
			}
			out.Roster = append(out.Roster, roster)
		}
	}

	counts := make(map[GroupKey]int)
	for _, c := range out.Candidates {
		counts[c.Group()]++
	}
	for i := range out.Candidates {
		out.Candidates[i].GroupGeneratorCount = counts[out.Candidates[i].Group()]
	}
	for key, agg := range aggregates {
		if _, ok := counts[key]; ok {
			continue
		}
		if agg.NetGenerationMWh == nil && agg.FuelConsumedMMBtu == nil {
			continue
		}
		out.Unclaimed = append(out.Unclaimed, GroupIssue{Key: key, Reason: ReasonUnclaimedAggregate})
	}
	sort.Slice(out.Unclaimed, func(i, j int) bool { return out.Unclaimed[i].Key.less(out.Unclaimed[j].Key) })
	return out
}

func collectPlantMonths(in Inputs) map[int][]time.Time {
	seen := make(map[int]map[time.Time]struct{})
	add := func(plantID int, month time.Time) {
		if seen[plantID] == nil {
			seen[plantID] = make(map[time.Time]struct{})
		}
		seen[plantID][month] = struct{}{}
	}
	for _, a := range in.FuelAggregates {
		add(a.PlantID, a.Month)
	}
	for _, r := range in.GeneratorReports {
		add(r.PlantID, r.Month)
	}
	for _, b := range in.BoilerFuel {
		add(b.PlantID, b.Month)
	}

	out := make(map[int][]time.Time, len(seen))
	for plantID, months := range seen {
		list := make([]time.Time, 0, len(months))
		for m := range months {
			list = append(list, m)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
		out[plantID] = list
	}
	return out
}

// attributeBoilerFuel splits boiler fuel across the generators each boiler
// feeds. Fuel that cannot be mapped is returned as missing associations.
func attributeBoilerFuel(in Inputs) (map[generatorFuelMonth]*float64, []MissingAssociation) {
	feeds := make(map[plantBoiler][]string)
	seenLink := make(map[BoilerGeneratorAssociation]struct{})
	for _, a := range in.BoilerGenerators {
		if _, ok := seenLink[a]; ok {
			continue
		}
		seenLink[a] = struct{}{}
		key := plantBoiler{PlantID: a.PlantID, BoilerID: a.BoilerID}
		feeds[key] = append(feeds[key], a.GeneratorID)
	}

	declared := make(map[generatorKey]map[string]struct{})
	capacity := make(map[generatorYear]*float64)
	for _, g := range in.Generators {
		gk := generatorKey{PlantID: g.PlantID, GeneratorID: g.GeneratorID}
		if declared[gk] == nil {
			declared[gk] = make(map[string]struct{})
		}
		for _, s := range g.Slots() {
			declared[gk][s.Code] = struct{}{}
		}
		capacity[generatorYear{generatorKey: gk, Year: g.Year()}] = g.CapacityMW
	}

	fuel := make(map[generatorFuelMonth]*float64)
	missing := make(map[BoilerKey]*MissingAssociation)
	var order []BoilerKey
	for _, b := range in.BoilerFuel {
		if b.FuelConsumedMMBtu == nil {
			continue
		}
		generators := feeds[plantBoiler{PlantID: b.PlantID, BoilerID: b.BoilerID}]
		reason := ""
		if len(generators) == 0 {
			reason = ReasonNoBoilerAssociation
		} else {
			var eligible []string
			for _, genID := range generators {
				if _, ok := declared[generatorKey{PlantID: b.PlantID, GeneratorID: genID}][b.EnergySource]; ok {
					eligible = append(eligible, genID)
				}
			}
			if len(eligible) == 0 {
				reason = ReasonUndeclaredFuelSource
			}
			for i, share := range boilerShares(b, eligible, capacity) {
				key := generatorFuelMonth{PlantID: b.PlantID, GeneratorID: eligible[i], EnergySource: b.EnergySource, Month: b.Month}
				fuel[key] = addNullable(fuel[key], Float(*b.FuelConsumedMMBtu*share))
			}
		}
		if reason == "" {
			continue
		}
		bk := BoilerKey{PlantID: b.PlantID, BoilerID: b.BoilerID, EnergySource: b.EnergySource, PrimeMover: b.PrimeMover}
		entry, ok := missing[bk]
		if !ok {
			entry = &MissingAssociation{
				PlantID:      b.PlantID,
				BoilerID:     b.BoilerID,
				EnergySource: b.EnergySource,
				PrimeMover:   b.PrimeMover,
				Reason:       reason,
			}
			missing[bk] = entry
			order = append(order, bk)
		}
		entry.Months++
		entry.UnallocatedFuelMMBtu += *b.FuelConsumedMMBtu
	}

	out := make([]MissingAssociation, 0, len(order))
	for _, bk := range order {
		out = append(out, *missing[bk])
	}
	return fuel, out
}

type generatorYear struct {
	generatorKey
	Year int
}

// boilerShares splits one boiler row across the generators it feeds by
// capacity, or equally when none of them has a positive capacity. The shares
// sum to 1.
func boilerShares(b BoilerFuelReport, generators []string, capacity map[generatorYear]*float64) []float64 {
	shares := make([]float64, len(generators))
	total := 0.0
	for i, genID := range generators {
		c := capacity[generatorYear{generatorKey: generatorKey{PlantID: b.PlantID, GeneratorID: genID}, Year: b.Month.Year()}]
		if c != nil && *c > 0 {
			shares[i] = *c
			total += *c
		}
	}
	for i := range shares {
		if total > 0 {
			shares[i] /= total
		} else {
			shares[i] = 1 / float64(len(shares))
		}
	}
	return shares
}

func copyNullable(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v)
}
