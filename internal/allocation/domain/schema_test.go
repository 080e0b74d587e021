package allocation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	jan := month(2018, time.January)
	cases := []struct {
		name   string
		mutate func(in *Inputs)
		table  string
		column string
	}{
		{
			name:   "slot out of range",
			mutate: func(in *Inputs) { in.Generators[0].EnergySources = []EnergySourceSlot{{Slot: 7, Code: "NG"}} },
			table:  TableGenerators,
			column: "energy_source_code",
		},
		{
			name: "slot declared twice",
			mutate: func(in *Inputs) {
				in.Generators[0].EnergySources = []EnergySourceSlot{{Slot: 1, Code: "NG"}, {Slot: 1, Code: "DFO"}}
			},
			table:  TableGenerators,
			column: "energy_source_code",
		},
		{
			name:   "negative capacity",
			mutate: func(in *Inputs) { in.Generators[1].CapacityMW = Float(-1) },
			table:  TableGenerators,
			column: "capacity_mw",
		},
		{
			name:   "duplicate generator year",
			mutate: func(in *Inputs) { in.Generators = append(in.Generators, in.Generators[0]) },
			table:  TableGenerators,
			column: "generator_id",
		},
		{
			name:   "missing plant id",
			mutate: func(in *Inputs) { in.GeneratorReports[0].PlantID = 0 },
			table:  TableGeneration,
			column: "plant_id_eia",
		},
		{
			name:   "duplicate generator month",
			mutate: func(in *Inputs) { in.GeneratorReports = append(in.GeneratorReports, in.GeneratorReports[1]) },
			table:  TableGeneration,
			column: "report_date",
		},
		{
			name:   "not a number",
			mutate: func(in *Inputs) { in.FuelAggregates[0].FuelConsumedMMBtu = Float(math.NaN()) },
			table:  TableGenerationFuel,
			column: "fuel_consumed_mmbtu",
		},
		{
			name:   "empty fuel type",
			mutate: func(in *Inputs) { in.FuelAggregates[1].FuelType = " " },
			table:  TableGenerationFuel,
			column: "fuel_type",
		},
		{
			name:   "unknown frequency",
			mutate: func(in *Inputs) { in.FuelAggregates[1].Frequency = "QS" },
			table:  TableGenerationFuel,
			column: "frequency",
		},
		{
			name: "missing boiler month",
			mutate: func(in *Inputs) {
				in.BoilerFuel = []BoilerFuelReport{{PlantID: 50307, BoilerID: "B1", EnergySource: "NG", PrimeMover: "ST"}}
			},
			table:  TableBoilerFuel,
			column: "report_date",
		},
		{
			name: "association without generator",
			mutate: func(in *Inputs) {
				in.BoilerGenerators = []BoilerGeneratorAssociation{{PlantID: 50307, BoilerID: "B1"}}
			},
			table:  TableBoilerGenerators,
			column: "generator_id",
		},
	}

	require.NoError(t, Validate(plant50307()))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := plant50307()
			in.BoilerFuel = []BoilerFuelReport{{PlantID: 50307, BoilerID: "B1", EnergySource: "NG", PrimeMover: "ST", Month: jan, FuelConsumedMMBtu: Float(1)}}
			tc.mutate(&in)

			err := Validate(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaViolation))
			var sv *SchemaViolation
			require.True(t, errors.As(err, &sv))
			assert.Equal(t, tc.table, sv.Table)
			assert.Equal(t, tc.column, sv.Column)
			assert.Contains(t, sv.Error(), "table="+tc.table)
		})
	}
}

func TestSchemaViolationLayoutError(t *testing.T) {
	err := violation(TableBoilerFuel, "fuel_consumed_mmbtu", -1, "missing column")
	assert.Equal(t, "allocation: schema violation: table=boiler_fuel column=fuel_consumed_mmbtu: missing column", err.Error())
}
