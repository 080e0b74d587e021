package allocation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func boilerSeries(plantID int, boilerID, esc, pm string, year int, freq Frequency, values []*float64) []BoilerFuelReport {
	rows := make([]BoilerFuelReport, 0, len(values))
	for i, v := range values {
		rows = append(rows, BoilerFuelReport{
			PlantID:           plantID,
			BoilerID:          boilerID,
			EnergySource:      esc,
			PrimeMover:        pm,
			Month:             month(year, time.Month(i+1)),
			FuelConsumedMMBtu: v,
			Frequency:         freq,
		})
	}
	return rows
}

func floats(values ...float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = Float(v)
	}
	return out
}

func boilerByMonth(rows []BoilerFuelReport, plantID int, year int) map[time.Month]*float64 {
	out := make(map[time.Month]*float64)
	for _, r := range rows {
		if r.PlantID == plantID && r.Month.Year() == year {
			out[r.Month.Month()] = r.FuelConsumedMMBtu
		}
	}
	return out
}

func TestDistributeBoilerFuelAnnualAndMonthly(t *testing.T) {
	annual2021 := make([]*float64, 12)
	annual2021[0] = Float(22222)
	annual2020 := floats(0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 20202)

	var rows []BoilerFuelReport
	rows = append(rows, boilerSeries(41, "a", "NG", "GT", 2021, FrequencyMonthly, floats(1, 2, 3, 4, 5, 6, 6, 5, 4, 3, 2, 1))...)
	rows = append(rows, boilerSeries(41, "a", "NG", "GT", 2020, FrequencyMonthly, floats(2, 3, 4, 5, 6, 7, 7, 6, 5, 4, 3, 2))...)
	rows = append(rows, boilerSeries(200, "B1", "BIT", "ST", 2021, FrequencyAnnual, annual2021)...)
	rows = append(rows, boilerSeries(200, "B1", "BIT", "ST", 2020, FrequencyAnnual, annual2020)...)

	out := Prepare(Inputs{BoilerFuel: rows}).BoilerFuel
	require.Len(t, out, 48)

	monthly2021 := boilerByMonth(out, 41, 2021)
	expected := []float64{1, 2, 3, 4, 5, 6, 6, 5, 4, 3, 2, 1}
	for i, want := range expected {
		got := monthly2021[time.Month(i+1)]
		require.NotNil(t, got)
		assert.Equal(t, want, *got, "monthly reporter must pass through, month %d", i+1)
	}

	for m, v := range boilerByMonth(out, 200, 2021) {
		require.NotNil(t, v, "month %s", m)
		assert.InDelta(t, 22222.0/12, *v, 1e-9, "month %s", m)
	}
	for m, v := range boilerByMonth(out, 200, 2020) {
		require.NotNil(t, v, "month %s", m)
		assert.InDelta(t, 20202.0/12, *v, 1e-9, "month %s", m)
	}
}

func TestDistributeAnnuallyConservesYearTotal(t *testing.T) {
	records := []PeriodRecord[string]{
		{Key: "x", Month: month(2019, time.March), Frequency: FrequencyAnnual, Values: []*float64{Float(1234.5678), nil}},
		{Key: "x", Month: month(2019, time.July), Frequency: FrequencyMonthly, Values: []*float64{Float(10), nil}},
	}
	out := DistributeAnnually(records)
	require.Len(t, out, 12)

	var sum float64
	for _, rec := range out {
		assert.Equal(t, FrequencyMonthly, rec.Frequency)
		assert.Nil(t, rec.Values[1], "column null everywhere stays null")
		sum += *rec.Values[0]
	}
	assert.InEpsilon(t, 1244.5678, sum, 1e-9)
}

func TestDistributeAnnuallyZeroAndAllNull(t *testing.T) {
	zero := []PeriodRecord[string]{{Key: "z", Month: month(2018, time.January), Frequency: FrequencyAnnual, Values: []*float64{Float(0)}}}
	out := DistributeAnnually(zero)
	require.Len(t, out, 12)
	for _, rec := range out {
		require.NotNil(t, rec.Values[0])
		assert.Zero(t, *rec.Values[0])
	}

	empty := []PeriodRecord[string]{{Key: "n", Month: month(2018, time.May), Frequency: FrequencyAnnual, Values: []*float64{nil}}}
	out = DistributeAnnually(empty)
	require.Len(t, out, 1, "all-null annual group passes through")
	assert.Equal(t, month(2018, time.May), out[0].Month)
	assert.Nil(t, out[0].Values[0])
}

func TestDistributeAnnuallyKeepsPartialMonthlyReporter(t *testing.T) {
	records := []PeriodRecord[string]{
		{Key: "m", Month: month(2020, time.February), Values: []*float64{Float(7)}},
	}
	out := DistributeAnnually(records)
	require.Len(t, out, 1)
	assert.Equal(t, 7.0, *out[0].Values[0])

	*out[0].Values[0] = 99
	assert.Equal(t, 7.0, *records[0].Values[0], "input must not be modified")
}

func TestPrepareNormalizesMonths(t *testing.T) {
	in := Inputs{
		GeneratorReports: []GeneratorMonthlyReport{{
			PlantID:          1,
			GeneratorID:      "G",
			Month:            time.Date(2020, time.April, 17, 13, 0, 0, 0, time.FixedZone("x", 3600)),
			NetGenerationMWh: Float(5),
		}},
		FuelAggregates: []FuelTypeMonthlyAggregate{{
			PlantID:          1,
			PrimeMover:       "ST",
			FuelType:         "NG",
			Month:            month(2020, time.January),
			NetGenerationMWh: Float(120),
			Frequency:        FrequencyAnnual,
		}},
	}
	out := Prepare(in)
	require.Len(t, out.GeneratorReports, 1)
	assert.Equal(t, month(2020, time.April), out.GeneratorReports[0].Month)

	require.Len(t, out.FuelAggregates, 12)
	for _, a := range out.FuelAggregates {
		assert.InDelta(t, 10, *a.NetGenerationMWh, 1e-12)
		assert.Nil(t, a.FuelConsumedMMBtu)
	}
	assert.False(t, math.IsNaN(*out.FuelAggregates[11].NetGenerationMWh))
}
