package allocation

import (
	"context"
	"time"
)

// Job statuses.
const (
	JobStatusCreated = "created"
	JobStatusRunning = "running"
	JobStatusSuccess = "succeeded"
	JobStatusFailed  = "failed"
)

// Job types.
const (
	JobTypeAllocation = "allocation"
	JobTypeReplay     = "replay"
)

// Scope selects the inputs of one run: a report year and, optionally, a
// subset of plants.
type Scope struct {
	Year     int   `json:"year"`
	PlantIDs []int `json:"plant_ids,omitempty"`
}

// Includes reports whether plantID is part of the scope.
func (s Scope) Includes(plantID int) bool {
	if len(s.PlantIDs) == 0 {
		return true
	}
	for _, id := range s.PlantIDs {
		if id == plantID {
			return true
		}
	}
	return false
}

// Filter drops every row outside the scope's plants and year.
func (s Scope) Filter(in Inputs) Inputs {
	var out Inputs
	for _, g := range in.Generators {
		if s.Includes(g.PlantID) && s.inYear(g.ReportDate) {
			out.Generators = append(out.Generators, g)
		}
	}
	for _, r := range in.GeneratorReports {
		if s.Includes(r.PlantID) && s.inYear(r.Month) {
			out.GeneratorReports = append(out.GeneratorReports, r)
		}
	}
	for _, a := range in.FuelAggregates {
		if s.Includes(a.PlantID) && s.inYear(a.Month) {
			out.FuelAggregates = append(out.FuelAggregates, a)
		}
	}
	for _, b := range in.BoilerFuel {
		if s.Includes(b.PlantID) && s.inYear(b.Month) {
			out.BoilerFuel = append(out.BoilerFuel, b)
		}
	}
	for _, a := range in.BoilerGenerators {
		if s.Includes(a.PlantID) {
			out.BoilerGenerators = append(out.BoilerGenerators, a)
		}
	}
	return out
}

func (s Scope) inYear(t time.Time) bool {
	return s.Year == 0 || t.Year() == s.Year
}

// Validate checks the report year.
func (s Scope) Validate() error {
	if s.Year < MinReportYear || s.Year > MaxReportYear {
		return ErrInvalidYear
	}
	return nil
}

// Supported report years.
const (
	MinReportYear = 2001
	MaxReportYear = 2100
)

// Job is one allocation run for a report year on a job date.
type Job struct {
	ID        string
	Year      int
	PlantIDs  []int
	JobDate   time.Time
	JobType   string
	Status    string
	Attempts  int
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
}

// Report is the stored outcome of a successful job.
type Report struct {
	ID                    string
	JobID                 string
	Year                  int
	PlantIDs              []int
	ReportDate            time.Time
	Status                string
	Location              string
	Summary               []byte
	AllocatedRows         int
	UnderdeterminedGroups int
	MissingAssociations   int
	DriftGroups           int
	UnallocatedFuelMMBtu  float64
	RecommendedAction     string
	CreatedAt             time.Time
}

// Alert is raised when a run crosses a configured threshold.
type Alert struct {
	ID        string
	Category  string
	Severity  string
	Title     string
	Message   string
	Payload   []byte
	ReportID  string
	Status    string
	CreatedAt time.Time
}

// Repository persists jobs, reports, alerts and allocated rows.
type Repository interface {
	// CreateJob inserts the job unless one with the same key exists and
	// returns the stored job.
	CreateJob(ctx context.Context, job *Job) (*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errMsg string, startedAt, endedAt *time.Time, bumpAttempt bool) error
	// SaveAllocations replaces the allocated rows covered by scope.
	SaveAllocations(ctx context.Context, scope Scope, records []AllocatedRecord) error
	ListAllocations(ctx context.Context, year int, plantID int) ([]AllocatedRecord, error)
	CreateReport(ctx context.Context, report *Report) error
	// GetReport returns ErrReportNotFound when no report has the id.
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, year int) ([]Report, error)
	CreateAlert(ctx context.Context, alert *Alert) error
}
