package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	allocation "netgen-allocation/internal/allocation/domain"
)

var errNilDB = errors.New("allocation repo: nil db")

// Repository handles allocation persistence.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateJob inserts a job if not exists, then returns the stored job.
func (r *Repository) CreateJob(ctx context.Context, job *allocation.Job) (*allocation.Job, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	if job == nil {
		return nil, errors.New("allocation repo: nil job")
	}
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO allocation_jobs (
	id, report_year, plant_ids, job_date, job_type, status, attempts, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,0,$7,$7
)
ON CONFLICT (id)
DO NOTHING`,
		job.ID, job.Year, joinInts(job.PlantIDs), job.JobDate, job.JobType, job.Status, now,
	); err != nil {
		return nil, err
	}
	return r.getJob(ctx, job.ID)
}

func (r *Repository) getJob(ctx context.Context, id string) (*allocation.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, report_year, plant_ids, job_date, job_type, status, attempts, error, created_at, updated_at, started_at, finished_at
FROM allocation_jobs
WHERE id = $1`, id)
	return scanJob(row)
}

// UpdateJobStatus updates job status and timestamps.
func (r *Repository) UpdateJobStatus(ctx context.Context, id, status, errMsg string, startedAt, finishedAt *time.Time, bumpAttempt bool) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if id == "" {
		return errors.New("allocation repo: empty job id")
	}
	now := time.Now().UTC()
	if bumpAttempt {
		_, err := r.db.ExecContext(ctx, `
UPDATE allocation_jobs
SET status = $1, error = $2, started_at = $3, finished_at = $4, attempts = attempts + 1, updated_at = $5
WHERE id = $6`, status, errMsg, startedAt, finishedAt, now, id)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE allocation_jobs
SET status = $1, error = $2, started_at = $3, finished_at = $4, updated_at = $5
WHERE id = $6`, status, errMsg, startedAt, finishedAt, now, id)
	return err
}

// SaveAllocations replaces the allocated rows of the scope in one transaction.
func (r *Repository) SaveAllocations(ctx context.Context, scope allocation.Scope, records []allocation.AllocatedRecord) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if len(scope.PlantIDs) == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM allocated_generation_fuel WHERE report_year = $1`, scope.Year)
	} else {
		for _, plantID := range scope.PlantIDs {
			if _, err = tx.ExecContext(ctx, `
DELETE FROM allocated_generation_fuel WHERE report_year = $1 AND plant_id_eia = $2`, scope.Year, plantID); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO allocated_generation_fuel (
	report_year, plant_id_eia, generator_id, prime_mover_code, energy_source_code, report_date,
	net_generation_mwh, fuel_consumed_mmbtu, fraction, tier
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Month.Year(), rec.PlantID, rec.GeneratorID, rec.PrimeMover, rec.FuelType, rec.Month,
			nullFloat(rec.NetGenerationMWh), nullFloat(rec.FuelConsumedMMBtu), rec.Fraction, string(rec.Tier),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListAllocations returns the allocated rows of a year, optionally for one plant.
func (r *Repository) ListAllocations(ctx context.Context, year int, plantID int) ([]allocation.AllocatedRecord, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT plant_id_eia, generator_id, prime_mover_code, energy_source_code, report_date,
	net_generation_mwh, fuel_consumed_mmbtu, fraction, tier
FROM allocated_generation_fuel
WHERE report_year = $1 AND ($2 = 0 OR plant_id_eia = $2)
ORDER BY plant_id_eia, report_date, prime_mover_code, energy_source_code, generator_id`, year, plantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []allocation.AllocatedRecord
	for rows.Next() {
		var rec allocation.AllocatedRecord
		var netgen, fuel sql.NullFloat64
		var tier string
		if err := rows.Scan(
			&rec.PlantID,
			&rec.GeneratorID,
			&rec.PrimeMover,
			&rec.FuelType,
			&rec.Month,
			&netgen,
			&fuel,
			&rec.Fraction,
			&tier,
		); err != nil {
			return nil, err
		}
		rec.Month = rec.Month.UTC()
		rec.NetGenerationMWh = floatPtr(netgen)
		rec.FuelConsumedMMBtu = floatPtr(fuel)
		rec.Tier = allocation.FallbackTier(tier)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateReport inserts a report.
func (r *Repository) CreateReport(ctx context.Context, report *allocation.Report) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if report == nil {
		return errors.New("allocation repo: nil report")
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO allocation_reports (
	id, job_id, report_year, plant_ids, report_date, status, report_location, summary,
	allocated_rows, underdetermined_groups, missing_associations, drift_groups,
	unallocated_fuel_mmbtu, recommended_action, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (id)
DO UPDATE SET report_location = EXCLUDED.report_location, summary = EXCLUDED.summary,
	allocated_rows = EXCLUDED.allocated_rows, underdetermined_groups = EXCLUDED.underdetermined_groups,
	missing_associations = EXCLUDED.missing_associations, drift_groups = EXCLUDED.drift_groups,
	unallocated_fuel_mmbtu = EXCLUDED.unallocated_fuel_mmbtu, recommended_action = EXCLUDED.recommended_action`,
		report.ID, report.JobID, report.Year, joinInts(report.PlantIDs), report.ReportDate, report.Status, report.Location, report.Summary,
		report.AllocatedRows, report.UnderdeterminedGroups, report.MissingAssociations, report.DriftGroups,
		report.UnallocatedFuelMMBtu, report.RecommendedAction, now)
	return err
}

const reportColumns = `id, job_id, report_year, plant_ids, report_date, status, report_location, summary,
	allocated_rows, underdetermined_groups, missing_associations, drift_groups,
	unallocated_fuel_mmbtu, recommended_action, created_at`

// ListReports lists the reports of a year, newest first. Year 0 lists all.
func (r *Repository) ListReports(ctx context.Context, year int) ([]allocation.Report, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+reportColumns+`
FROM allocation_reports
WHERE $1 = 0 OR report_year = $1
ORDER BY report_date DESC, id`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []allocation.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetReport returns report by id.
func (r *Repository) GetReport(ctx context.Context, id string) (*allocation.Report, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+reportColumns+`
FROM allocation_reports
WHERE id = $1`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, allocation.ErrReportNotFound
	}
	return report, err
}

// CreateAlert inserts an allocation alert.
func (r *Repository) CreateAlert(ctx context.Context, alert *allocation.Alert) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if alert == nil {
		return errors.New("allocation repo: nil alert")
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO allocation_alerts (
	id, category, severity, title, message, payload, report_id, status, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (id) DO NOTHING`,
		alert.ID, alert.Category, alert.Severity, alert.Title, alert.Message, alert.Payload, alert.ReportID, alert.Status, now)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*allocation.Job, error) {
	var job allocation.Job
	var plants string
	var started sql.NullTime
	var finished sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(
		&job.ID,
		&job.Year,
		&plants,
		&job.JobDate,
		&job.JobType,
		&job.Status,
		&job.Attempts,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&started,
		&finished,
	); err != nil {
		return nil, err
	}
	job.PlantIDs = splitInts(plants)
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if started.Valid {
		t := started.Time.UTC()
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time.UTC()
		job.EndedAt = &t
	}
	job.JobDate = job.JobDate.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func scanReport(row rowScanner) (*allocation.Report, error) {
	var report allocation.Report
	var plants string
	if err := row.Scan(
		&report.ID,
		&report.JobID,
		&report.Year,
		&plants,
		&report.ReportDate,
		&report.Status,
		&report.Location,
		&report.Summary,
		&report.AllocatedRows,
		&report.UnderdeterminedGroups,
		&report.MissingAssociations,
		&report.DriftGroups,
		&report.UnallocatedFuelMMBtu,
		&report.RecommendedAction,
		&report.CreatedAt,
	); err != nil {
		return nil, err
	}
	report.PlantIDs = splitInts(plants)
	report.ReportDate = report.ReportDate.UTC()
	report.CreatedAt = report.CreatedAt.UTC()
	return &report, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(value string) []int {
	if value == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return allocation.Float(v.Float64)
}

var _ allocation.Repository = (*Repository)(nil)
