package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	allocapp "netgen-allocation/internal/allocation/application"
	allocation "netgen-allocation/internal/allocation/domain"
	allocinterfaces "netgen-allocation/internal/allocation/interfaces"
	"netgen-allocation/internal/audit"
	"netgen-allocation/internal/auth"
	"netgen-allocation/internal/observability/metrics"
)

const (
	apiPrefix     = "/api/v1/allocation"
	reportsPrefix = apiPrefix + "/reports/"
)

// Handler provides allocation APIs.
type Handler struct {
	runner      *allocapp.Runner
	repo        allocation.Repository
	auditLogger audit.Logger
	proxies     []netip.Prefix
	now         func() time.Time
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(runner *allocapp.Runner, repo allocation.Repository, auditLogger audit.Logger) (*Handler, error) {
	if runner == nil || repo == nil {
		return nil, errors.New("allocation handler: nil dependency")
	}
	return &Handler{runner: runner, repo: repo, auditLogger: auditLogger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// SetTrustedProxies sets the proxies whose forwarding headers are believed
// when recording the client address of audited requests.
func (h *Handler) SetTrustedProxies(proxies []netip.Prefix) {
	h.proxies = proxies
}

// ServeHTTP routes allocation endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == apiPrefix+"/run" && r.Method == http.MethodPost:
		h.handleRun(w, r)
		return
	case r.URL.Path == apiPrefix+"/reports" && r.Method == http.MethodGet:
		h.handleReports(w, r)
		return
	case r.URL.Path == apiPrefix+"/allocations" && r.Method == http.MethodGet:
		h.handleAllocations(w, r)
		return
	case strings.HasPrefix(r.URL.Path, reportsPrefix):
		h.handleReportByID(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Year       int                  `json:"year"`
		PlantIDs   []int                `json:"plant_ids"`
		JobDate    string               `json:"job_date"`
		Thresholds *allocapp.Thresholds `json:"thresholds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	scope := allocation.Scope{Year: req.Year, PlantIDs: req.PlantIDs}
	if err := scope.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !auth.PlantsAllowed(r.Context(), scope.PlantIDs) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	jobDate := h.now()
	if req.JobDate != "" {
		parsed, err := time.Parse("2006-01-02", req.JobDate)
		if err != nil {
			http.Error(w, "invalid job_date", http.StatusBadRequest)
			return
		}
		jobDate = parsed
	}

	report, err := h.runner.Run(r.Context(), allocapp.RunRequest{Scope: scope, JobDate: jobDate, Thresholds: req.Thresholds})
	if err != nil {
		respondRunError(w, err)
		return
	}
	h.logAudit(r, "allocation.run", report, map[string]any{"year": scope.Year, "plant_ids": scope.PlantIDs, "job_date": jobDate.Format("2006-01-02")})
	writeJSON(w, http.StatusOK, map[string]any{
		"report_id":          report.ID,
		"job_id":             report.JobID,
		"status":             report.Status,
		"recommended_action": report.RecommendedAction,
	})
}

func (h *Handler) handleReports(w http.ResponseWriter, r *http.Request) {
	year, err := intQuery(r, "year")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reports, err := h.repo.ListReports(r.Context(), year)
	if err != nil {
		http.Error(w, "query reports error", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(reports))
	for i := range reports {
		if !auth.PlantsAllowed(r.Context(), reports[i].PlantIDs) {
			continue
		}
		out = append(out, reportView(&reports[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAllocations(w http.ResponseWriter, r *http.Request) {
	year, err := intQuery(r, "year")
	if err != nil || year == 0 {
		http.Error(w, "year required", http.StatusBadRequest)
		return
	}
	plantID, err := intQuery(r, "plant_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var requested []int
	if plantID != 0 {
		requested = []int{plantID}
	}
	if !auth.PlantsAllowed(r.Context(), requested) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	rows, err := h.repo.ListAllocations(r.Context(), year, plantID)
	if err != nil {
		http.Error(w, "query allocations error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []allocation.AllocatedRecord{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleReportByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, reportsPrefix), "/")
	reportID := parts[0]
	if reportID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	} else if len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	method := http.MethodGet
	if action == "replay" {
		method = http.MethodPost
	}
	if r.Method != method {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	report, err := h.repo.GetReport(r.Context(), reportID)
	if err != nil || report == nil {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	if !auth.PlantsAllowed(r.Context(), report.PlantIDs) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch action {
	case "":
		writeJSON(w, http.StatusOK, reportView(report))
	case "download":
		h.handleDownload(w, r, report)
	case "export.xlsx", "export.pdf":
		h.handleExport(w, r, report, strings.TrimPrefix(action, "export."))
	case "replay":
		h.handleReplay(w, r, report)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request, report *allocation.Report) {
	rc, err := h.runner.OpenArchive(r.Context(), report)
	if err != nil {
		if errors.Is(err, allocation.ErrReportNotFound) {
			http.Error(w, "report archive not found", http.StatusNotFound)
			return
		}
		http.Error(w, "open report archive error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+report.ID+".zip\"")
	_, _ = io.Copy(w, rc)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, report *allocation.Report, format string) {
	start := time.Now()
	var err error
	defer func() {
		metrics.ObserveReportExport(format, err, time.Since(start))
	}()

	var summary allocapp.Summary
	summary, err = allocapp.DecodeSummary(report.Summary)
	if err != nil {
		http.Error(w, "invalid report summary", http.StatusInternalServerError)
		return
	}
	var rows []allocation.AllocatedRecord
	rows, err = h.runner.ReportRows(r.Context(), report)
	if err != nil {
		if errors.Is(err, allocation.ErrReportNotFound) {
			http.Error(w, "report archive not found", http.StatusNotFound)
			return
		}
		http.Error(w, "read report rows error", http.StatusInternalServerError)
		return
	}

	var data []byte
	contentType := ""
	switch format {
	case "xlsx":
		data, err = allocinterfaces.BuildReportXLSX(report, summary, rows)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = allocinterfaces.BuildReportPDF(report, summary, rows)
		contentType = "application/pdf"
	}
	if err != nil {
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+report.ID+"."+format+"\"")
	_, _ = w.Write(data)
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request, report *allocation.Report) {
	replayed, err := h.runner.Replay(r.Context(), report, h.now())
	if err != nil {
		respondRunError(w, err)
		return
	}
	h.logAudit(r, "allocation.replay", replayed, map[string]any{"replayed_report_id": report.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"report_id":          replayed.ID,
		"replayed_report_id": report.ID,
		"job_id":             replayed.JobID,
		"status":             replayed.Status,
	})
}

func (h *Handler) logAudit(r *http.Request, action string, report *allocation.Report, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "allocation_report",
		ResourceID:   report.ID,
		PlantIDs:     report.PlantIDs,
		Metadata:     payload,
		IP:           audit.ClientIP(r, h.proxies),
		UserAgent:    r.UserAgent(),
	})
}

func reportView(report *allocation.Report) map[string]any {
	return map[string]any{
		"id":                     report.ID,
		"job_id":                 report.JobID,
		"year":                   report.Year,
		"plant_ids":              report.PlantIDs,
		"report_date":            report.ReportDate.Format("2006-01-02"),
		"status":                 report.Status,
		"location":               report.Location,
		"summary":                json.RawMessage(nonEmptyJSON(report.Summary)),
		"allocated_rows":         report.AllocatedRows,
		"underdetermined_groups": report.UnderdeterminedGroups,
		"missing_associations":   report.MissingAssociations,
		"drift_groups":           report.DriftGroups,
		"unallocated_fuel_mmbtu": report.UnallocatedFuelMMBtu,
		"recommended_action":     report.RecommendedAction,
	}
}

func respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, allocation.ErrInvalidYear):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, allocation.ErrJobRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, allocation.ErrSchemaViolation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func intQuery(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func nonEmptyJSON(data []byte) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
