package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	allocation "netgen-allocation/internal/allocation/domain"
	allocmetrics "netgen-allocation/internal/allocation/metrics"
	allocnotify "netgen-allocation/internal/allocation/notify"
)

// Recommended actions attached to reports and alerts.
const (
	ActionAddBoilerAssociations = "add_boiler_associations"
	ActionReviewUnderdetermined = "review_underdetermined_groups"
	ActionInvestigateDrift      = "investigate_drift"
	ActionNone                  = "none"
)

// InputSource loads the typed input tables of a scope.
type InputSource interface {
	Load(ctx context.Context, scope allocation.Scope) (allocation.Inputs, error)
}

// ArchiveStore keeps report archives. Put returns the location to store on
// the report; Open reads it back.
type ArchiveStore interface {
	Put(ctx context.Context, key, path string) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// RunRequest describes one allocation run.
type RunRequest struct {
	Scope      allocation.Scope
	JobDate    time.Time
	Thresholds *Thresholds
	// ReplayOf names the report being rerun. Replays always execute under a
	// fresh job id.
	ReplayOf string
}

// Runner executes allocation jobs.
type Runner struct {
	repo          allocation.Repository
	source        InputSource
	archive       ArchiveStore
	engine        *allocation.Engine
	cfg           Config
	notifier      allocnotify.Notifier
	metrics       *allocmetrics.Metrics
	logger        *log.Logger
	publicBaseURL string
	storageRoot   string
}

// NewRunner constructs a Runner. archive, notifier, metrics and logger are
// optional.
func NewRunner(repo allocation.Repository, source InputSource, archive ArchiveStore, cfg Config, notifier allocnotify.Notifier, metrics *allocmetrics.Metrics, logger *log.Logger) (*Runner, error) {
	if repo == nil {
		return nil, allocation.ErrNilRepository
	}
	if source == nil {
		return nil, errors.New("allocation runner: nil input source")
	}
	if cfg.StorageRoot == "" {
		return nil, errors.New("allocation runner: storage root required")
	}
	engine := allocation.NewEngine(
		allocation.WithTolerance(cfg.Tolerance),
		allocation.WithWorkers(cfg.Workers),
		allocation.WithLogger(logger),
	)
	return &Runner{
		repo:          repo,
		source:        source,
		archive:       archive,
		engine:        engine,
		cfg:           cfg,
		notifier:      notifier,
		metrics:       metrics,
		logger:        logger,
		publicBaseURL: cfg.PublicBaseURL,
		storageRoot:   cfg.StorageRoot,
	}, nil
}

// JobID derives the deterministic job id of a scope and job date.
func JobID(scope allocation.Scope, jobDate time.Time) string {
	id := fmt.Sprintf("alloc-%d-%s", scope.Year, jobDate.UTC().Format("20060102"))
	if len(scope.PlantIDs) == 0 {
		return id
	}
	plants := append([]int(nil), scope.PlantIDs...)
	sort.Ints(plants)
	parts := make([]string, len(plants))
	for i, p := range plants {
		parts[i] = strconv.Itoa(p)
	}
	scopeID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, ",")))
	return id + "-" + scopeID.String()[:8]
}

// ReplayJobID derives a unique job id for a replay of scope on jobDate.
func ReplayJobID(scope allocation.Scope, jobDate time.Time) string {
	return JobID(scope, jobDate) + "-replay-" + uuid.NewString()[:8]
}

// Run executes an allocation job for a report year.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*allocation.Report, error) {
	if r == nil {
		return nil, errors.New("allocation runner: nil")
	}
	scope := req.Scope
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	jobDate := req.JobDate
	if jobDate.IsZero() {
		jobDate = time.Now().UTC()
	}
	jobDate = time.Date(jobDate.Year(), jobDate.Month(), jobDate.Day(), 0, 0, 0, 0, time.UTC)

	jobID, jobType := JobID(scope, jobDate), allocation.JobTypeAllocation
	if req.ReplayOf != "" {
		jobID, jobType = ReplayJobID(scope, jobDate), allocation.JobTypeReplay
	}
	job, err := r.repo.CreateJob(ctx, &allocation.Job{
		ID:       jobID,
		Year:     scope.Year,
		PlantIDs: scope.PlantIDs,
		JobDate:  jobDate,
		JobType:  jobType,
		Status:   allocation.JobStatusCreated,
	})
	if err != nil {
		return nil, err
	}
	if job.Status == allocation.JobStatusSuccess {
		return r.repo.GetReport(ctx, reportID(job.ID))
	}
	if job.Status == allocation.JobStatusRunning {
		return nil, allocation.ErrJobRunning
	}

	started := time.Now().UTC()
	_ = r.repo.UpdateJobStatus(ctx, job.ID, allocation.JobStatusRunning, "", &started, nil, true)
	if r.metrics != nil {
		r.metrics.JobsTotal.WithLabelValues(allocation.JobStatusRunning).Inc()
	}
	r.logf("allocation_job_start", scope, job.ID, "", "")

	thresholds := r.cfg.ThresholdsForYear(scope.Year)
	if req.Thresholds != nil {
		thresholds = mergeThresholds(thresholds, *req.Thresholds)
	}

	report, summary, diag, err := r.execute(ctx, job.ID, scope, jobDate, thresholds)
	if err != nil {
		r.fail(ctx, job.ID, scope, started, err)
		return nil, err
	}

	if isThresholdExceeded(summary, thresholds) {
		if err := r.createAlert(ctx, report, summary); err != nil {
			r.logf("allocation_alert_failed", scope, job.ID, report.ID, err.Error())
		} else if r.metrics != nil {
			r.metrics.AlertsTotal.Inc()
		}
	}

	ended := time.Now().UTC()
	_ = r.repo.UpdateJobStatus(ctx, job.ID, allocation.JobStatusSuccess, "", &started, &ended, false)
	if r.metrics != nil {
		r.metrics.JobsTotal.WithLabelValues(allocation.JobStatusSuccess).Inc()
		r.metrics.JobDuration.Observe(ended.Sub(started).Seconds())
		r.metrics.ReportsTotal.Inc()
		r.metrics.AllocatedRows.Set(float64(summary.AllocatedRows))
		r.metrics.UnallocatedFuel.Set(summary.UnallocatedFuelMMBtu)
		r.metrics.MaxDrift.Set(summary.MaxDrift)
		for kind, n := range diag.Counts() {
			r.metrics.DiagnosticsTotal.WithLabelValues(kind).Add(float64(n))
		}
		for tier, n := range summary.Tiers {
			r.metrics.TierRowsTotal.WithLabelValues(tier).Add(float64(n))
		}
	}
	r.logf("allocation_job_success", scope, job.ID, report.ID, "")
	return report, nil
}

func (r *Runner) execute(ctx context.Context, jobID string, scope allocation.Scope, jobDate time.Time, thresholds Thresholds) (*allocation.Report, Summary, allocation.Diagnostics, error) {
	inputs, err := r.source.Load(ctx, scope)
	if err != nil {
		return nil, Summary{}, allocation.Diagnostics{}, fmt.Errorf("load inputs: %w", err)
	}
	result, err := r.engine.Run(scope.Filter(inputs))
	if err != nil {
		return nil, Summary{}, allocation.Diagnostics{}, err
	}

	summary := buildSummary(jobID, scope, result, thresholds)
	reportDir := filepath.Join(r.storageRoot, strconv.Itoa(scope.Year), jobID)
	if err := writeReports(reportDir, result, summary); err != nil {
		return nil, Summary{}, allocation.Diagnostics{}, err
	}
	location, err := writeArchive(reportDir)
	if err != nil {
		return nil, Summary{}, allocation.Diagnostics{}, err
	}
	if r.archive != nil {
		key := fmt.Sprintf("%d/%s/%s", scope.Year, jobID, FileArchive)
		location, err = r.archive.Put(ctx, key, location)
		if err != nil {
			return nil, Summary{}, allocation.Diagnostics{}, fmt.Errorf("store archive: %w", err)
		}
	}

	if err := r.repo.SaveAllocations(ctx, scope, result.Allocated); err != nil {
		return nil, Summary{}, allocation.Diagnostics{}, fmt.Errorf("save allocations: %w", err)
	}

	summaryBytes, _ := json.Marshal(summary)
	report := &allocation.Report{
		ID:                    reportID(jobID),
		JobID:                 jobID,
		Year:                  scope.Year,
		PlantIDs:              scope.PlantIDs,
		ReportDate:            jobDate,
		Status:                "generated",
		Location:              location,
		Summary:               summaryBytes,
		AllocatedRows:         summary.AllocatedRows,
		UnderdeterminedGroups: summary.Diagnostics[allocation.KindUnderdeterminedGroup],
		MissingAssociations:   summary.Diagnostics[allocation.KindMissingAssociation],
		DriftGroups:           summary.DriftGroups,
		UnallocatedFuelMMBtu:  summary.UnallocatedFuelMMBtu,
		RecommendedAction:     recommendedAction(summary, thresholds),
		CreatedAt:             time.Now().UTC(),
	}
	if err := r.repo.CreateReport(ctx, report); err != nil {
		return nil, Summary{}, allocation.Diagnostics{}, err
	}
	return report, summary, result.Diagnostics, nil
}

// OpenArchive returns the archive of a report.
func (r *Runner) OpenArchive(ctx context.Context, report *allocation.Report) (io.ReadCloser, error) {
	if report == nil {
		return nil, allocation.ErrReportNotFound
	}
	if r.archive != nil {
		return r.archive.Open(ctx, report.Location)
	}
	return openLocal(report.Location)
}

// ReportRows returns the allocated rows stored in a report's archive.
func (r *Runner) ReportRows(ctx context.Context, report *allocation.Report) ([]allocation.AllocatedRecord, error) {
	rc, err := r.OpenArchive(ctx, report)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return readArchiveRows(data)
}

// Replay reruns the scope of an existing report on jobDate.
func (r *Runner) Replay(ctx context.Context, report *allocation.Report, jobDate time.Time) (*allocation.Report, error) {
	if report == nil {
		return nil, allocation.ErrReportNotFound
	}
	return r.Run(ctx, RunRequest{
		Scope:    allocation.Scope{Year: report.Year, PlantIDs: report.PlantIDs},
		JobDate:  jobDate,
		ReplayOf: report.ID,
	})
}

func (r *Runner) fail(ctx context.Context, jobID string, scope allocation.Scope, started time.Time, err error) {
	ended := time.Now().UTC()
	_ = r.repo.UpdateJobStatus(ctx, jobID, allocation.JobStatusFailed, err.Error(), &started, &ended, false)
	if r.metrics != nil {
		r.metrics.JobsTotal.WithLabelValues(allocation.JobStatusFailed).Inc()
	}
	r.logf("allocation_job_failed", scope, jobID, "", err.Error())
}

func (r *Runner) createAlert(ctx context.Context, report *allocation.Report, summary Summary) error {
	if report == nil {
		return nil
	}
	payload := map[string]any{
		"underdetermined_groups": summary.Diagnostics[allocation.KindUnderdeterminedGroup],
		"missing_associations":   summary.Diagnostics[allocation.KindMissingAssociation],
		"drift_groups":           summary.DriftGroups,
		"unallocated_fuel_mmbtu": summary.UnallocatedFuelMMBtu,
		"recommended_action":     report.RecommendedAction,
	}
	payloadBytes, _ := json.Marshal(payload)
	alert := &allocation.Alert{
		ID:        "alert-" + report.ID,
		Category:  "allocation",
		Severity:  "high",
		Title:     fmt.Sprintf("Allocation diagnostics alert: %d", report.Year),
		Message:   fmt.Sprintf("Diagnostics exceed threshold for report year %d", report.Year),
		Payload:   payloadBytes,
		ReportID:  report.ID,
		Status:    "open",
		CreatedAt: time.Now().UTC(),
	}
	if err := r.repo.CreateAlert(ctx, alert); err != nil {
		return err
	}
	if r.notifier != nil {
		return r.notifier.Notify(ctx, allocnotify.AlertMessage{
			Year:              report.Year,
			PlantIDs:          report.PlantIDs,
			ReportID:          report.ID,
			ReportURL:         fmt.Sprintf("%s/api/v1/allocation/reports/%s/download", r.publicBaseURL, report.ID),
			Diagnostics:       payload,
			RecommendedAction: report.RecommendedAction,
			Meta:              map[string]string{"job_id": report.JobID},
		})
	}
	return nil
}

func isThresholdExceeded(summary Summary, thresholds Thresholds) bool {
	return recommendedAction(summary, thresholds) != ActionNone
}

func recommendedAction(summary Summary, thresholds Thresholds) string {
	if thresholds.MissingAssociations > 0 && summary.Diagnostics[allocation.KindMissingAssociation] >= thresholds.MissingAssociations {
		return ActionAddBoilerAssociations
	}
	if thresholds.UnallocatedFuelMMBtu > 0 && summary.UnallocatedFuelMMBtu >= thresholds.UnallocatedFuelMMBtu {
		return ActionAddBoilerAssociations
	}
	if thresholds.UnderdeterminedGroups > 0 && summary.Diagnostics[allocation.KindUnderdeterminedGroup] >= thresholds.UnderdeterminedGroups {
		return ActionReviewUnderdetermined
	}
	if thresholds.DriftGroups > 0 && summary.DriftGroups >= thresholds.DriftGroups {
		return ActionInvestigateDrift
	}
	return ActionNone
}

func reportID(jobID string) string { return "report-" + jobID }

func (r *Runner) logf(event string, scope allocation.Scope, jobID, reportID, errMsg string) {
	if r.logger == nil {
		return
	}
	r.logger.Printf("event=%s year=%d plant_ids=%v job_id=%s report_id=%s correlation_id=%s error=%s",
		event, scope.Year, scope.PlantIDs, jobID, reportID, jobID, errMsg)
}
