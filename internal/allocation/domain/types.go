package allocation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MaxEnergySourceSlots is the number of ordered energy-source codes a
// generator can declare (primary through sixth fuel).
const MaxEnergySourceSlots = 6

// StatusRetired is the operational status of a generator that no longer runs.
const StatusRetired = "retired"

// Frequency is how often a respondent files a value.
type Frequency string

const (
	FrequencyMonthly Frequency = "MS"
	FrequencyAnnual  Frequency = "AS"
)

// IsAnnual reports whether the value covers a whole calendar year.
// The zero value is monthly.
func (f Frequency) IsAnnual() bool {
	parsed, _ := ParseFrequency(string(f))
	return parsed == FrequencyAnnual
}

// ParseFrequency accepts the short codes and the words used by the
// regulator's respondent tables.
func ParseFrequency(value string) (Frequency, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "M", "MS", "MONTHLY":
		return FrequencyMonthly, true
	case "A", "AS", "ANNUAL", "ANNUALLY":
		return FrequencyAnnual, true
	default:
		return "", false
	}
}

// EnergySourceSlot is one ordered energy-source code of a generator.
type EnergySourceSlot struct {
	Slot int    `json:"slot"`
	Code string `json:"code"`
}

// GeneratorRecord holds static generator attributes for one calendar year.
type GeneratorRecord struct {
	PlantID           int
	GeneratorID       string
	ReportDate        time.Time
	PrimeMover        string
	CapacityMW        *float64
	FuelTypeCount     int
	RetirementDate    *time.Time
	OperationalStatus string
	EnergySources     []EnergySourceSlot
}

// Year is the calendar year the attributes apply to.
func (g GeneratorRecord) Year() int { return g.ReportDate.Year() }

// OperatesIn reports whether the generator is still operating during month.
// A generator is excluded from its retirement month onward.
func (g GeneratorRecord) OperatesIn(month time.Time) bool {
	if g.RetirementDate != nil && !g.RetirementDate.IsZero() {
		return month.Before(MonthStart(*g.RetirementDate))
	}
	return !strings.EqualFold(g.OperationalStatus, StatusRetired)
}

// Slots returns the declared energy sources ordered by slot, with blank
// codes dropped and repeated codes kept only at their lowest slot.
func (g GeneratorRecord) Slots() []EnergySourceSlot {
	slots := make([]EnergySourceSlot, 0, len(g.EnergySources))
	for _, s := range g.EnergySources {
		code := strings.TrimSpace(s.Code)
		if code == "" {
			continue
		}
		slots = append(slots, EnergySourceSlot{Slot: s.Slot, Code: code})
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })
	seen := make(map[string]struct{}, len(slots))
	out := slots[:0]
	for _, s := range slots {
		if _, ok := seen[s.Code]; ok {
			continue
		}
		seen[s.Code] = struct{}{}
		out = append(out, s)
	}
	return out
}

// GeneratorMonthlyReport is net generation reported by one generator.
type GeneratorMonthlyReport struct {
	PlantID          int
	GeneratorID      string
	Month            time.Time
	NetGenerationMWh *float64
	Frequency        Frequency
}

// FuelTypeMonthlyAggregate is the coarse total for every generator sharing a
// plant, prime mover and fuel type. Allocation must conserve it.
type FuelTypeMonthlyAggregate struct {
	PlantID           int
	PrimeMover        string
	FuelType          string
	Month             time.Time
	NetGenerationMWh  *float64
	FuelConsumedMMBtu *float64
	Frequency         Frequency
}

// BoilerFuelReport is fuel metered at one boiler.
type BoilerFuelReport struct {
	PlantID           int
	BoilerID          string
	EnergySource      string
	PrimeMover        string
	Month             time.Time
	FuelConsumedMMBtu *float64
	Frequency         Frequency
}

// BoilerGeneratorAssociation links a boiler to a generator it feeds.
type BoilerGeneratorAssociation struct {
	PlantID     int
	BoilerID    string
	GeneratorID string
}

// Inputs is the full set of typed tables handed to the engine for one run.
type Inputs struct {
	Generators       []GeneratorRecord
	GeneratorReports []GeneratorMonthlyReport
	FuelAggregates   []FuelTypeMonthlyAggregate
	BoilerFuel       []BoilerFuelReport
	BoilerGenerators []BoilerGeneratorAssociation
}

// GroupKey identifies a (plant, prime mover, fuel type, month) allocation group.
type GroupKey struct {
	PlantID    int       `json:"plant_id"`
	PrimeMover string    `json:"prime_mover_code"`
	FuelType   string    `json:"fuel_type"`
	Month      time.Time `json:"report_date"`
}

func (k GroupKey) String() string {
	return fmt.Sprintf("plant_id=%d prime_mover=%s fuel_type=%s month=%s", k.PlantID, k.PrimeMover, k.FuelType, FormatMonth(k.Month))
}

func (k GroupKey) less(o GroupKey) bool {
	if k.PlantID != o.PlantID {
		return k.PlantID < o.PlantID
	}
	if k.PrimeMover != o.PrimeMover {
		return k.PrimeMover < o.PrimeMover
	}
	if k.FuelType != o.FuelType {
		return k.FuelType < o.FuelType
	}
	return k.Month.Before(o.Month)
}

// GeneratorMonthKey identifies one generator in one month.
type GeneratorMonthKey struct {
	PlantID     int
	GeneratorID string
	Month       time.Time
}

func (k GeneratorMonthKey) less(o GeneratorMonthKey) bool {
	if k.PlantID != o.PlantID {
		return k.PlantID < o.PlantID
	}
	if k.GeneratorID != o.GeneratorID {
		return k.GeneratorID < o.GeneratorID
	}
	return k.Month.Before(o.Month)
}

type generatorKey struct {
	PlantID     int
	GeneratorID string
}

// BoilerKey identifies a boiler fuel series.
type BoilerKey struct {
	PlantID      int
	BoilerID     string
	EnergySource string
	PrimeMover   string
}

// Float returns a pointer to v, for building nullable values.
func Float(v float64) *float64 { return &v }

func addNullable(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return Float(*b)
	case b == nil:
		return Float(*a)
	default:
		return Float(*a + *b)
	}
}

func scaleNullable(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v * factor)
}

func sortGroupKeys(keys []GroupKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
}

func sortGroupIssues(issues []GroupIssue) {
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Key.less(issues[j].Key) })
}
