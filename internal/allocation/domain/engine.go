package allocation

import (
	"log"
	"runtime"
)

// Result is the complete output of one allocation run.
type Result struct {
	Candidates  []CandidateRow
	Fractions   []FractionRow
	Allocated   []AllocatedRecord
	Generators  []GeneratorMonthlyTotal
	Diagnostics Diagnostics
}

// Engine runs the allocation stages over one batch of inputs.
type Engine struct {
	tolerance float64
	workers   int
	logger    *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTolerance sets the reconciliation tolerance.
func WithTolerance(tolerance float64) Option {
	return func(e *Engine) {
		if tolerance > 0 {
			e.tolerance = tolerance
		}
	}
}

// WithWorkers bounds the number of groups evaluated concurrently.
func WithWorkers(workers int) Option {
	return func(e *Engine) {
		if workers > 0 {
			e.workers = workers
		}
	}
}

// WithLogger sets the logger used for drift warnings.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine constructs an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{tolerance: DefaultTolerance, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run validates the inputs, spreads annual values over their months,
// associates the tables, allocates and aggregates. A schema violation aborts
// the run; every other condition is reported in the diagnostics.
func (e *Engine) Run(in Inputs) (*Result, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	prepared := Prepare(in)
	assoc := Associate(prepared)
	fractions := AllocateFractions(assoc.Candidates, e.workers)
	applied := Apply(fractions.Rows, e.tolerance, e.workers)
	generators := AggregateByGenerator(applied.Records, assoc.Roster)

	diag := Diagnostics{
		MissingAssociations:    assoc.MissingAssociations,
		UnderdeterminedGroups:  append(fractions.Underdetermined, assoc.Unclaimed...),
		MissingAggregates:      fractions.MissingAggregates,
		PartialEvidenceGroups:  fractions.PartialEvidence,
		NegativeEvidenceGroups: fractions.NegativeEvidence,
		UnallocableGenerators:  assoc.Unallocable,
		Drifts:                 applied.Drifts,
	}
	sortGroupIssues(diag.UnderdeterminedGroups)
	for _, d := range diag.Drifts {
		e.logf("event=allocation_drift %s measure=%s expected=%g actual=%g", d.Key, d.Measure, d.Expected, d.Actual)
	}
	for _, m := range diag.MissingAssociations {
		e.logf("event=allocation_missing_association plant_id=%d boiler_id=%s energy_source=%s unallocated_mmbtu=%g", m.PlantID, m.BoilerID, m.EnergySource, m.UnallocatedFuelMMBtu)
	}

	return &Result{
		Candidates:  assoc.Candidates,
		Fractions:   fractions.Rows,
		Allocated:   applied.Records,
		Generators:  generators,
		Diagnostics: diag,
	}, nil
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
