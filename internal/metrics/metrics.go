// Package metrics defines the Prometheus metrics exposed by the grid.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduler metrics
var (
	// JobsCreated tracks total jobs accepted into the backlog.
	JobsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_jobs_created_total",
			Help: "Total number of scan jobs created",
		},
	)

	// JobsClaimed tracks dispatches to worker nodes.
	JobsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_jobs_claimed_total",
			Help: "Total number of scan jobs claimed by worker nodes",
		},
	)

	// JobsCompleted tracks successful scans.
	JobsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_jobs_completed_total",
			Help: "Total number of scan jobs completed successfully",
		},
	)

	// JobsFailed tracks terminal failures (retry budget spent).
	JobsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_jobs_failed_total",
			Help: "Total number of scan jobs that failed terminally",
		},
	)

	// JobsRetried tracks failures absorbed by the retry budget.
	JobsRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_jobs_retried_total",
			Help: "Total number of scan job attempts absorbed as retries",
		},
	)

	// ClaimDuration tracks how long an atomic claim takes end to end.
	ClaimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grid_claim_duration_seconds",
			Help:    "Claim operation duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// BacklogDepth is the number of pending jobs awaiting dispatch.
	BacklogDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_backlog_depth",
			Help: "Number of pending jobs in the priority backlog",
		},
	)

	// NodesRegistered is the number of registered worker nodes.
	NodesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_nodes_registered",
			Help: "Number of registered worker nodes",
		},
	)
)

// Rotation metrics
var (
	// EgressPoolSize is the current egress identity count.
	EgressPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_egress_pool_size",
			Help: "Number of egress identities in the rotation pool",
		},
	)

	// EgressSelections tracks identity hand-outs by selection mode.
	EgressSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_egress_selections_total",
			Help: "Total egress identity selections by mode",
		},
		[]string{"mode"},
	)

	// FingerprintsGenerated tracks generated client profiles by device class.
	FingerprintsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_fingerprints_generated_total",
			Help: "Total client fingerprints generated by device class",
		},
		[]string{"device"},
	)
)

// Controller metrics
var (
	// ReconcileRuns tracks controller reconcile runs by outcome.
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_controller_reconcile_total",
			Help: "Total controller reconcile runs by controller and outcome",
		},
		[]string{"controller", "outcome"},
	)

	// ReconcileDuration tracks reconcile latency per controller.
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grid_controller_reconcile_duration_seconds",
			Help:    "Controller reconcile duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"controller"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks API requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grid_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "route"},
	)
)
