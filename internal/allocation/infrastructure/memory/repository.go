package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	allocation "netgen-allocation/internal/allocation/domain"
)

// Repository is an in-memory allocation repository.
type Repository struct {
	mu          sync.RWMutex
	jobs        map[string]*allocation.Job
	reports     map[string]*allocation.Report
	alerts      []allocation.Alert
	allocations map[int][]allocation.AllocatedRecord
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{
		jobs:        make(map[string]*allocation.Job),
		reports:     make(map[string]*allocation.Report),
		allocations: make(map[int][]allocation.AllocatedRecord),
	}
}

// CreateJob inserts the job unless its id exists, then returns the stored job.
func (r *Repository) CreateJob(ctx context.Context, job *allocation.Job) (*allocation.Job, error) {
	_ = ctx
	if job == nil {
		return nil, errors.New("allocation memory repo: nil job")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		now := time.Now().UTC()
		copy := *job
		copy.CreatedAt = now
		copy.UpdatedAt = now
		stored = &copy
		r.jobs[job.ID] = stored
	}
	out := *stored
	return &out, nil
}

// Job returns a job by id, or nil.
func (r *Repository) Job(id string) *allocation.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	out := *job
	return &out
}

// UpdateJobStatus updates job status and timestamps.
func (r *Repository) UpdateJobStatus(ctx context.Context, id, status, errMsg string, startedAt, endedAt *time.Time, bumpAttempt bool) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return errors.New("allocation memory repo: job not found")
	}
	job.Status = status
	job.Error = errMsg
	job.StartedAt = startedAt
	job.EndedAt = endedAt
	job.UpdatedAt = time.Now().UTC()
	if bumpAttempt {
		job.Attempts++
	}
	return nil
}

// SaveAllocations replaces the rows of the scope's year and plants.
func (r *Repository) SaveAllocations(ctx context.Context, scope allocation.Scope, records []allocation.AllocatedRecord) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []allocation.AllocatedRecord
	for _, rec := range r.allocations[scope.Year] {
		if !scope.Includes(rec.PlantID) {
			kept = append(kept, rec)
		}
	}
	r.allocations[scope.Year] = append(kept, records...)
	return nil
}

// ListAllocations returns the rows of a year, optionally for one plant.
func (r *Repository) ListAllocations(ctx context.Context, year int, plantID int) ([]allocation.AllocatedRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []allocation.AllocatedRecord
	for _, rec := range r.allocations[year] {
		if plantID == 0 || rec.PlantID == plantID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CreateReport stores a report.
func (r *Repository) CreateReport(ctx context.Context, report *allocation.Report) error {
	_ = ctx
	if report == nil {
		return errors.New("allocation memory repo: nil report")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *report
	r.reports[report.ID] = &copy
	return nil
}

// GetReport returns a report by id.
func (r *Repository) GetReport(ctx context.Context, id string) (*allocation.Report, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[id]
	if !ok {
		return nil, allocation.ErrReportNotFound
	}
	out := *report
	return &out, nil
}

// ListReports returns the reports of a year, newest first. Year 0 lists all.
func (r *Repository) ListReports(ctx context.Context, year int) ([]allocation.Report, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []allocation.Report
	for _, report := range r.reports {
		if year == 0 || report.Year == year {
			out = append(out, *report)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReportDate.Equal(out[j].ReportDate) {
			return out[i].ReportDate.After(out[j].ReportDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreateAlert stores an alert.
func (r *Repository) CreateAlert(ctx context.Context, alert *allocation.Alert) error {
	_ = ctx
	if alert == nil {
		return errors.New("allocation memory repo: nil alert")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, *alert)
	return nil
}

// Alerts returns the stored alerts.
func (r *Repository) Alerts() []allocation.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]allocation.Alert(nil), r.alerts...)
}

var _ allocation.Repository = (*Repository)(nil)
