package allocation

import "math"

// Diagnostic kinds, used as report counters and metric labels.
const (
	KindMissingAssociation   = "missing_association"
	KindUnderdeterminedGroup = "underdetermined_group"
	KindMissingAggregate     = "missing_aggregate"
	KindPartialEvidence      = "partial_evidence"
	KindNegativeEvidence     = "negative_evidence"
	KindUnallocableGenerator = "unallocable_generator"
	KindReconciliationDrift  = "reconciliation_drift"
)

// Drift measures.
const (
	MeasureFraction      = "fraction"
	MeasureNetGeneration = "net_generation_mwh"
	MeasureFuelConsumed  = "fuel_consumed_mmbtu"
)

// GroupIssue records a non-fatal condition on one allocation group.
type GroupIssue struct {
	Key     GroupKey `json:"key"`
	Members int      `json:"members"`
	Reason  string   `json:"reason"`
}

// MissingAssociation is boiler fuel that could not be attributed to any
// generator. Its fuel is left out of generator-level allocation.
type MissingAssociation struct {
	PlantID              int     `json:"plant_id"`
	BoilerID             string  `json:"boiler_id"`
	EnergySource         string  `json:"energy_source_code"`
	PrimeMover           string  `json:"prime_mover_code"`
	Months               int     `json:"months"`
	UnallocatedFuelMMBtu float64 `json:"unallocated_fuel_mmbtu"`
	Reason               string  `json:"reason"`
}

// UnallocableGenerator is a generator that cannot take part in allocation.
type UnallocableGenerator struct {
	PlantID     int    `json:"plant_id"`
	GeneratorID string `json:"generator_id"`
	Year        int    `json:"year"`
	Reason      string `json:"reason"`
}

// ReconciliationDrift is a group whose allocated sums miss the invariant sum
// by more than the tolerance.
type ReconciliationDrift struct {
	Key      GroupKey `json:"key"`
	Measure  string   `json:"measure"`
	Expected float64  `json:"expected"`
	Actual   float64  `json:"actual"`
}

// Deviation is the absolute difference between actual and expected.
func (d ReconciliationDrift) Deviation() float64 { return math.Abs(d.Actual - d.Expected) }

// Diagnostics accumulates every non-fatal condition of one run.
type Diagnostics struct {
	MissingAssociations    []MissingAssociation   `json:"missing_associations"`
	UnderdeterminedGroups  []GroupIssue           `json:"underdetermined_groups"`
	MissingAggregates      []GroupIssue           `json:"missing_aggregates"`
	PartialEvidenceGroups  []GroupIssue           `json:"partial_evidence_groups"`
	NegativeEvidenceGroups []GroupIssue           `json:"negative_evidence_groups"`
	UnallocableGenerators  []UnallocableGenerator `json:"unallocable_generators"`
	Drifts                 []ReconciliationDrift  `json:"drifts"`
}

// Counts returns the number of entries per diagnostic kind.
func (d Diagnostics) Counts() map[string]int {
	return map[string]int{
		KindMissingAssociation:   len(d.MissingAssociations),
		KindUnderdeterminedGroup: len(d.UnderdeterminedGroups),
		KindMissingAggregate:     len(d.MissingAggregates),
		KindPartialEvidence:      len(d.PartialEvidenceGroups),
		KindNegativeEvidence:     len(d.NegativeEvidenceGroups),
		KindUnallocableGenerator: len(d.UnallocableGenerators),
		KindReconciliationDrift:  len(d.Drifts),
	}
}

// UnallocatedFuelMMBtu is the boiler fuel left out of allocation.
func (d Diagnostics) UnallocatedFuelMMBtu() float64 {
	var total float64
	for _, m := range d.MissingAssociations {
		total += m.UnallocatedFuelMMBtu
	}
	return total
}

// DriftGroups counts distinct groups with at least one drift.
func (d Diagnostics) DriftGroups() int {
	seen := make(map[GroupKey]struct{}, len(d.Drifts))
	for _, drift := range d.Drifts {
		seen[drift.Key] = struct{}{}
	}
	return len(seen)
}

// MaxDrift is the largest deviation over all drifts.
func (d Diagnostics) MaxDrift() float64 {
	var max float64
	for _, drift := range d.Drifts {
		if dev := drift.Deviation(); dev > max {
			max = dev
		}
	}
	return max
}
