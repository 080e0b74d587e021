package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles allocation metrics.
type Metrics struct {
	JobsTotal        *prometheus.CounterVec
	JobDuration      prometheus.Histogram
	DiagnosticsTotal *prometheus.CounterVec
	AllocatedRows    prometheus.Gauge
	UnallocatedFuel  prometheus.Gauge
	MaxDrift         prometheus.Gauge
	ReportsTotal     prometheus.Counter
	AlertsTotal      prometheus.Counter
	TierRowsTotal    *prometheus.CounterVec
}

// New constructs metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry constructs metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netgen_allocation_jobs_total",
				Help: "Total allocation jobs by status",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netgen_allocation_job_duration_seconds",
			Help:    "Allocation job duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		DiagnosticsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netgen_allocation_diagnostics_total",
				Help: "Recorded allocation diagnostics by kind",
			},
			[]string{"kind"},
		),
		AllocatedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netgen_allocation_allocated_rows",
			Help: "Allocated rows produced by the last run",
		}),
		UnallocatedFuel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netgen_allocation_unallocated_fuel_mmbtu",
			Help: "Boiler fuel left out of allocation by the last run",
		}),
		MaxDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netgen_allocation_drift_max",
			Help: "Largest reconciliation deviation of the last run",
		}),
		ReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netgen_allocation_reports_total",
			Help: "Total allocation reports",
		}),
		AlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netgen_allocation_alerts_total",
			Help: "Total allocation alerts",
		}),
		TierRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netgen_allocation_rows_by_tier_total",
				Help: "Allocated rows by fallback tier",
			},
			[]string{"tier"},
		),
	}
	reg.MustRegister(
		m.JobsTotal,
		m.JobDuration,
		m.DiagnosticsTotal,
		m.AllocatedRows,
		m.UnallocatedFuel,
		m.MaxDrift,
		m.ReportsTotal,
		m.AlertsTotal,
		m.TierRowsTotal,
	)
	return m
}
