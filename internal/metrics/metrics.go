// Package metrics provides Prometheus metrics for segregation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Move results.
const (
	ResultDated  = "dated"
	ResultError  = "error"
	ResultFailed = "failed"
)

var (
	objectsSeenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segregation_objects_seen_total",
			Help: "Total objects discovered under the source prefix",
		},
	)

	movesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segregation_moves_total",
			Help: "Total move outcomes by result",
		},
		[]string{"result"},
	)

	pagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segregation_pages_total",
			Help: "Total listing pages processed",
		},
	)

	pageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segregation_page_duration_seconds",
			Help:    "Time to move every object of one page",
			Buckets: prometheus.DefBuckets,
		},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segregation_runs_total",
			Help: "Total runs by status",
		},
		[]string{"status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segregation_run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	lastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "segregation_last_run_timestamp_seconds",
			Help: "Unix time the last run completed",
		},
	)

	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "segregation_storage_operation_duration_seconds",
			Help:    "Object storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segregation_storage_operations_total",
			Help: "Total object storage operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPage records one processed page.
func RecordPage(objects int, duration time.Duration) {
	pagesTotal.Inc()
	objectsSeenTotal.Add(float64(objects))
	pageDuration.Observe(duration.Seconds())
}

// RecordMove records a single move outcome.
func RecordMove(result string) {
	movesTotal.WithLabelValues(result).Inc()
}

// RecordRun records a finished run.
func RecordRun(status string, duration time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(duration.Seconds())
	lastRunTimestamp.SetToCurrentTime()
}

// RecordStorageOperation records an object storage call.
func RecordStorageOperation(operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	storageOperationsTotal.WithLabelValues(operation, status).Inc()
}
