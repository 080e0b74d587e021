package allocation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociateFansOutSlotsAndDeduplicates(t *testing.T) {
	jan := month(2018, time.January)
	gen := generator(1, "G", "ST", Float(4), "NG", "DFO")
	gen.EnergySources = append(gen.EnergySources, EnergySourceSlot{Slot: 3, Code: "NG"}, EnergySourceSlot{Slot: 4, Code: ""})
	in := Prepare(Inputs{
		Generators:     []GeneratorRecord{gen, generator(1, "EMPTY", "ST", Float(1))},
		FuelAggregates: []FuelTypeMonthlyAggregate{aggregate(1, "ST", "NG", jan, Float(1), Float(2))},
	})

	assoc := Associate(in)
	require.Len(t, assoc.Candidates, 2)
	assert.Equal(t, "NG", assoc.Candidates[0].EnergySource)
	assert.Equal(t, 1, assoc.Candidates[0].Slot)
	assert.True(t, assoc.Candidates[0].HasAggregate)
	assert.Equal(t, "DFO", assoc.Candidates[1].EnergySource)
	assert.False(t, assoc.Candidates[1].HasAggregate)
	assert.Equal(t, 1, assoc.Candidates[0].GroupGeneratorCount)

	require.Len(t, assoc.Unallocable, 1)
	assert.Equal(t, "EMPTY", assoc.Unallocable[0].GeneratorID)
	assert.Equal(t, ReasonNoEnergySource, assoc.Unallocable[0].Reason)
	assert.Len(t, assoc.Roster, 2, "generators without codes stay on the roster")
}

func TestAssociateMonthsComeFromAnyTable(t *testing.T) {
	jan, feb, mar := month(2018, time.January), month(2018, time.February), month(2018, time.March)
	in := Prepare(Inputs{
		Generators:       []GeneratorRecord{generator(1, "G", "ST", Float(4), "NG")},
		GeneratorReports: []GeneratorMonthlyReport{report(1, "G", feb, 3)},
		FuelAggregates:   []FuelTypeMonthlyAggregate{aggregate(1, "ST", "NG", jan, Float(1), nil)},
		BoilerFuel:       []BoilerFuelReport{{PlantID: 1, BoilerID: "B", EnergySource: "NG", PrimeMover: "ST", Month: mar, FuelConsumedMMBtu: Float(9)}},
		BoilerGenerators: []BoilerGeneratorAssociation{{PlantID: 1, BoilerID: "B", GeneratorID: "G"}},
	})
	assoc := Associate(in)
	require.Len(t, assoc.Candidates, 3)
	assert.Equal(t, []time.Time{jan, feb, mar}, []time.Time{assoc.Candidates[0].Month, assoc.Candidates[1].Month, assoc.Candidates[2].Month})
	assert.Equal(t, 3.0, *assoc.Candidates[1].NetGenerationMWh)
	assert.Equal(t, 9.0, *assoc.Candidates[2].BoilerFuelMMBtu)
	assert.Nil(t, assoc.Candidates[0].BoilerFuelMMBtu)
	assert.Empty(t, assoc.MissingAssociations)
}

func TestAssociateBoilerFuel(t *testing.T) {
	jan := month(2018, time.January)
	boiler := func(id, esc string, v float64) BoilerFuelReport {
		return BoilerFuelReport{PlantID: 4, BoilerID: id, EnergySource: esc, PrimeMover: "ST", Month: jan, FuelConsumedMMBtu: Float(v)}
	}
	in := Prepare(Inputs{
		Generators: []GeneratorRecord{
			generator(4, "G1", "ST", Float(1), "BIT"),
			generator(4, "G2", "ST", Float(1), "BIT", "NG"),
		},
		BoilerFuel: []BoilerFuelReport{
			boiler("B1", "BIT", 100),
			boiler("B2", "BIT", 50),
			boiler("B2", "NG", 7),
			boiler("B3", "DFO", 11),
			boiler("B4", "BIT", 13),
		},
		BoilerGenerators: []BoilerGeneratorAssociation{
			{PlantID: 4, BoilerID: "B1", GeneratorID: "G1"},
			{PlantID: 4, BoilerID: "B2", GeneratorID: "G2"},
			{PlantID: 4, BoilerID: "B2", GeneratorID: "G2"},
			{PlantID: 4, BoilerID: "B3", GeneratorID: "G1"},
		},
	})
	assoc := Associate(in)

	fuel := make(map[string]float64)
	for _, c := range assoc.Candidates {
		if c.BoilerFuelMMBtu != nil {
			fuel[c.GeneratorID+"/"+c.EnergySource] = *c.BoilerFuelMMBtu
		}
	}
	assert.Equal(t, map[string]float64{"G1/BIT": 100, "G2/BIT": 50, "G2/NG": 7}, fuel)

	require.Len(t, assoc.MissingAssociations, 2)
	assert.Equal(t, "B3", assoc.MissingAssociations[0].BoilerID)
	assert.Equal(t, ReasonUndeclaredFuelSource, assoc.MissingAssociations[0].Reason)
	assert.Equal(t, "B4", assoc.MissingAssociations[1].BoilerID)
	assert.Equal(t, ReasonNoBoilerAssociation, assoc.MissingAssociations[1].Reason)
	assert.Equal(t, 13.0, assoc.MissingAssociations[1].UnallocatedFuelMMBtu)
	assert.Equal(t, 1, assoc.MissingAssociations[1].Months)

	var g2 GeneratorMonth
	for _, r := range assoc.Roster {
		if r.GeneratorID == "G2" {
			g2 = r
		}
	}
	require.NotNil(t, g2.BoilerFuelMMBtu)
	assert.Equal(t, 57.0, *g2.BoilerFuelMMBtu)
}

func TestAssociateSplitsSharedBoilerFuel(t *testing.T) {
	jan := month(2018, time.January)
	boilerFuel := func(plantID int) BoilerFuelReport {
		return BoilerFuelReport{PlantID: plantID, BoilerID: "B1", EnergySource: "NG", PrimeMover: "ST", Month: jan, FuelConsumedMMBtu: Float(100)}
	}
	link := func(plantID int, gen string) BoilerGeneratorAssociation {
		return BoilerGeneratorAssociation{PlantID: plantID, BoilerID: "B1", GeneratorID: gen}
	}
	in := Prepare(Inputs{
		Generators: []GeneratorRecord{
			generator(7, "G1", "ST", Float(3), "NG"),
			generator(7, "G2", "ST", Float(1), "NG"),
			generator(7, "G3", "ST", Float(9), "DFO"),
			generator(8, "G1", "ST", nil, "NG"),
			generator(8, "G2", "ST", Float(0), "NG"),
		},
		BoilerFuel:       []BoilerFuelReport{boilerFuel(7), boilerFuel(8)},
		BoilerGenerators: []BoilerGeneratorAssociation{link(7, "G1"), link(7, "G2"), link(7, "G3"), link(8, "G1"), link(8, "G2")},
	})
	assoc := Associate(in)

	perPlant := make(map[int]float64)
	byGen := make(map[string]float64)
	for _, r := range assoc.Roster {
		if r.BoilerFuelMMBtu == nil {
			continue
		}
		perPlant[r.PlantID] += *r.BoilerFuelMMBtu
		byGen[fmt.Sprintf("%d/%s", r.PlantID, r.GeneratorID)] = *r.BoilerFuelMMBtu
	}
	assert.InDelta(t, 100, perPlant[7], 1e-9, "boiler fuel must sum back to the boiler total")
	assert.InDelta(t, 100, perPlant[8], 1e-9)
	assert.InDelta(t, 75, byGen["7/G1"], 1e-9, "capacity share")
	assert.InDelta(t, 25, byGen["7/G2"], 1e-9)
	assert.NotContains(t, byGen, "7/G3", "generator without the energy source gets nothing")
	assert.InDelta(t, 50, byGen["8/G1"], 1e-9, "equal split without capacity")
	assert.InDelta(t, 50, byGen["8/G2"], 1e-9)
	assert.Empty(t, assoc.MissingAssociations)
}

func TestAssociateReportsUnclaimedTotals(t *testing.T) {
	jan := month(2018, time.January)
	in := Prepare(Inputs{
		Generators: []GeneratorRecord{generator(6, "G", "CT", Float(1), "NG")},
		FuelAggregates: []FuelTypeMonthlyAggregate{
			aggregate(6, "CT", "NG", jan, Float(1), Float(1)),
			aggregate(6, "CT", "WAT", jan, Float(5), nil),
			aggregate(6, "ST", "RFO", jan, nil, nil),
		},
	})
	assoc := Associate(in)
	require.Len(t, assoc.Unclaimed, 1)
	assert.Equal(t, "WAT", assoc.Unclaimed[0].Key.FuelType)
	assert.Zero(t, assoc.Unclaimed[0].Members)
}

func TestAggregateByGeneratorSumsAndKeepsNil(t *testing.T) {
	jan := month(2018, time.January)
	records := []AllocatedRecord{
		{PlantID: 1, GeneratorID: "B", FuelType: "NG", Month: jan, NetGenerationMWh: Float(2), FuelConsumedMMBtu: nil},
		{PlantID: 1, GeneratorID: "B", FuelType: "DFO", Month: jan, NetGenerationMWh: Float(3), FuelConsumedMMBtu: nil},
		{PlantID: 1, GeneratorID: "A", FuelType: "NG", Month: jan, NetGenerationMWh: Float(1), FuelConsumedMMBtu: Float(10)},
	}
	roster := []GeneratorMonth{
		{PlantID: 1, GeneratorID: "A", Month: jan, ReportedNetGenerationMWh: Float(1)},
		{PlantID: 1, GeneratorID: "B", Month: jan},
		{PlantID: 1, GeneratorID: "C", Month: jan},
	}
	out := AggregateByGenerator(records, roster)
	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].GeneratorID)
	assert.Equal(t, 1.0, *out[0].ReportedNetGenerationMWh)
	assert.Equal(t, 5.0, *out[1].NetGenerationMWh)
	assert.Nil(t, out[1].FuelConsumedMMBtu, "nil plus nil stays nil")
	assert.Nil(t, out[2].NetGenerationMWh)
	assert.Nil(t, out[2].FuelConsumedMMBtu)
}
