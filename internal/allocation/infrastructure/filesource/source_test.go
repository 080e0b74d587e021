package filesource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	allocation "netgen-allocation/internal/allocation/domain"
)

var fixtures = map[string]string{
	allocation.TableGenerators: `plant_id_eia,generator_id,report_date,prime_mover_code,capacity_mw,fuel_type_count,retirement_date,operational_status,energy_source_code_1,energy_source_code_2
50307,GEN1,2018-01-01,ST,7.5,1,,existing,NG,
50307,GEN5,2018-01-01,IC,,1,,existing,DFO,
3,A,2018-01-01,GT,10,1,2018-06-01,retired,NG,DFO
`,
	allocation.TableGeneration: `plant_id_eia,generator_id,report_date,net_generation_mwh,frequency
50307,GEN1,2018-01-01,14,MS
50307,GEN1,2017-01-01,9,MS
`,
	allocation.TableGenerationFuel: `plant_id_eia,prime_mover_code,energy_source_code,report_date,net_generation_mwh,fuel_consumed_mmbtu,frequency
50307,ST,NG,2018-01-01,15,100000,MS
50307,IC,DFO,2018-01-01,0,0,MS
50307,ST,RFO,2018-01-01,,,MS
`,
	allocation.TableBoilerFuel: `plant_id_eia,boiler_id,energy_source_code,prime_mover_code,report_date,fuel_consumed_mmbtu,frequency
50307,B1,NG,ST,2018-01-01,22222,AS
`,
	allocation.TableBoilerGenerators: `plant_id_eia,boiler_id,generator_id
50307,B1,GEN1
`,
}

func writeFixtures(t *testing.T, overrides map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range fixtures {
		if override, ok := overrides[name]; ok {
			content = override
		}
		if content == "" {
			continue
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(content), 0o600))
	}
	return dir
}

func TestCSVSourceLoad(t *testing.T) {
	dir := writeFixtures(t, nil)

	in, err := NewCSVSource(dir).Load(context.Background(), allocation.Scope{Year: 2018, PlantIDs: []int{50307}})
	require.NoError(t, err)

	require.Len(t, in.Generators, 2)
	assert.Equal(t, "GEN1", in.Generators[0].GeneratorID)
	require.NotNil(t, in.Generators[0].CapacityMW)
	assert.Equal(t, 7.5, *in.Generators[0].CapacityMW)
	assert.Nil(t, in.Generators[1].CapacityMW)
	assert.Equal(t, []allocation.EnergySourceSlot{{Slot: 1, Code: "DFO"}}, in.Generators[1].EnergySources)

	require.Len(t, in.GeneratorReports, 1, "2017 row is outside the scope")
	require.Len(t, in.FuelAggregates, 3)
	assert.Nil(t, in.FuelAggregates[2].NetGenerationMWh)
	assert.Nil(t, in.FuelAggregates[2].FuelConsumedMMBtu)

	require.Len(t, in.BoilerFuel, 1)
	assert.Equal(t, allocation.FrequencyAnnual, in.BoilerFuel[0].Frequency)
	assert.Equal(t, time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC), in.BoilerFuel[0].Month)
	require.Len(t, in.BoilerGenerators, 1)
}

func TestCSVSourceRetirementDate(t *testing.T) {
	dir := writeFixtures(t, nil)

	in, err := NewCSVSource(dir).Load(context.Background(), allocation.Scope{Year: 2018, PlantIDs: []int{3}})
	require.NoError(t, err)
	require.Len(t, in.Generators, 1)
	require.NotNil(t, in.Generators[0].RetirementDate)
	assert.Equal(t, time.June, in.Generators[0].RetirementDate.Month())
	assert.Len(t, in.Generators[0].EnergySources, 2)
}

func TestCSVSourceMissingColumn(t *testing.T) {
	dir := writeFixtures(t, map[string]string{
		allocation.TableGenerationFuel: "plant_id_eia,prime_mover_code,report_date,net_generation_mwh,fuel_consumed_mmbtu\n50307,ST,2018-01-01,15,100\n",
	})

	_, err := NewCSVSource(dir).Load(context.Background(), allocation.Scope{Year: 2018})
	require.ErrorIs(t, err, allocation.ErrSchemaViolation)
	var violation *allocation.SchemaViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, allocation.TableGenerationFuel, violation.Table)
	assert.Equal(t, "energy_source_code", violation.Column)
	assert.Equal(t, -1, violation.Row)
}

func TestCSVSourceUnparsableValue(t *testing.T) {
	dir := writeFixtures(t, map[string]string{
		allocation.TableGeneration: "plant_id_eia,generator_id,report_date,net_generation_mwh\n50307,GEN1,2018-01-01,14\n50307,GEN1,2018-02-01,lots\n",
	})

	_, err := NewCSVSource(dir).Load(context.Background(), allocation.Scope{Year: 2018})
	var violation *allocation.SchemaViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "net_generation_mwh", violation.Column)
	assert.Equal(t, 1, violation.Row)
}

func TestCSVSourceUnknownFrequency(t *testing.T) {
	dir := writeFixtures(t, map[string]string{
		allocation.TableBoilerFuel: "plant_id_eia,boiler_id,energy_source_code,prime_mover_code,report_date,fuel_consumed_mmbtu,frequency\n50307,B1,NG,ST,2018-01-01,1,weekly\n",
	})

	_, err := NewCSVSource(dir).Load(context.Background(), allocation.Scope{Year: 2018})
	var violation *allocation.SchemaViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "frequency", violation.Column)
}

func TestCSVSourceEmptyDir(t *testing.T) {
	_, err := NewCSVSource(t.TempDir()).Load(context.Background(), allocation.Scope{Year: 2018})
	assert.ErrorIs(t, err, ErrNoTables)
}

func TestWorkbookSourceLoad(t *testing.T) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", allocation.TableGenerators)
	rows := map[string][][]any{
		allocation.TableGenerators: {
			{"plant_id_eia", "generator_id", "report_date", "prime_mover_code", "capacity_mw", "energy_source_code_1"},
			{50307, "GEN1", "2018-01-01", "ST", 7.5, "NG"},
			{50307, "GEN2", "2018-01-01", "ST", 2.5, "NG"},
		},
		allocation.TableGenerationFuel: {
			{"plant_id_eia", "prime_mover_code", "energy_source_code", "report_date", "net_generation_mwh", "fuel_consumed_mmbtu"},
			{50307, "ST", "NG", "2018-01-01", 15, 100000},
		},
	}
	for _, name := range []string{allocation.TableGenerators, allocation.TableGenerationFuel} {
		if name != allocation.TableGenerators {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows[name] {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	path := filepath.Join(t.TempDir(), "inputs.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	loader, err := Open(path)
	require.NoError(t, err)
	in, err := loader.Load(context.Background(), allocation.Scope{Year: 2018})
	require.NoError(t, err)
	require.Len(t, in.Generators, 2)
	require.Len(t, in.FuelAggregates, 1)
	assert.Empty(t, in.GeneratorReports)
	require.NotNil(t, in.FuelAggregates[0].FuelConsumedMMBtu)
	assert.Equal(t, 100000.0, *in.FuelAggregates[0].FuelConsumedMMBtu)
	assert.Equal(t, allocation.FrequencyMonthly, in.FuelAggregates[0].Frequency)
}
