package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// UnitsTotal counts finished unit stages by outcome
	UnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footprint_units_total",
			Help: "Total number of unit stages processed",
		},
		[]string{"stage", "outcome"}, // stage: fetch, extract, import; outcome: ok, cached, skipped, <failure kind>
	)

	// UnitDuration measures unit stage duration in seconds
	UnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "footprint_unit_duration_seconds",
			Help:    "Unit stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5.5m
		},
		[]string{"stage"},
	)

	// DownloadedBytes counts archive bytes written to the cache
	DownloadedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "footprint_downloaded_bytes_total",
			Help: "Total number of archive bytes downloaded",
		},
	)

	// StoreOperations counts geospatial store calls
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footprint_store_operations_total",
			Help: "Total number of geospatial store operations",
		},
		[]string{"operation", "status"},
	)

	// StoreOperationDuration measures geospatial store call duration
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "footprint_store_operation_duration_seconds",
			Help:    "Geospatial store operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		},
		[]string{"operation"},
	)

	// SnapshotFeatures tracks the feature count of each year's regional snapshot
	SnapshotFeatures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "footprint_snapshot_features",
			Help: "Number of features in the regional snapshot of a year",
		},
		[]string{"year"},
	)

	// ChangeFeatures tracks the feature count of each year's change layer
	ChangeFeatures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "footprint_change_features",
			Help: "Number of new features detected in a year",
		},
		[]string{"year"},
	)

	// YearsTotal counts change-detection steps by outcome
	YearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footprint_years_total",
			Help: "Total number of change detection steps",
		},
		[]string{"outcome"}, // outcome: no_data, baseline, diffed, merge_failed, diff_failed
	)

	// RunsTotal counts pipeline runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footprint_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"}, // status: success, failed
	)

	// LastRunTimestamp records when the last run finished
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "footprint_last_run_timestamp_seconds",
			Help: "Unix time the last pipeline run finished",
		},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "footprint_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordUnit records a finished unit stage
func RecordUnit(stage, outcome string, duration float64) {
	UnitsTotal.WithLabelValues(stage, outcome).Inc()
	UnitDuration.WithLabelValues(stage).Observe(duration)
}

// RecordDownloadBytes records downloaded archive bytes
func RecordDownloadBytes(n int64) {
	DownloadedBytes.Add(float64(n))
}

// RecordStoreOperation records a geospatial store call
func RecordStoreOperation(operation, status string, duration float64) {
	StoreOperations.WithLabelValues(operation, status).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordYear records a change-detection step
func RecordYear(year int, outcome string, snapshotCount, changeCount int64) {
	label := strconv.Itoa(year)

	YearsTotal.WithLabelValues(outcome).Inc()
	SnapshotFeatures.WithLabelValues(label).Set(float64(snapshotCount))
	ChangeFeatures.WithLabelValues(label).Set(float64(changeCount))
}

// RecordRun records a finished pipeline run
func RecordRun(status string, finishedUnix float64) {
	RunsTotal.WithLabelValues(status).Inc()
	LastRunTimestamp.Set(finishedUnix)
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
