// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the code execution service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ExecutionBuckets defines histogram buckets suited for sandboxed runs,
// ranging from 50ms to the longest compile-plus-run budget.
var ExecutionBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexec_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codexec_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"method"},
	)

	// ExecutionsTotal counts finished executions by language and outcome
	// (success or an error kind).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexec_executions_total",
			Help: "Executions",
		},
		[]string{"language", "outcome"},
	)

	// ExecutionDuration records wall-clock execution time in seconds.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codexec_execution_duration_seconds",
			Help:    "Execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"language"},
	)

	// TestCasesTotal counts reported test results by pass or fail.
	TestCasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexec_test_cases_total",
			Help: "Test case results",
		},
		[]string{"language", "result"},
	)

	// ValidationRejectionsTotal counts submissions rejected before spawn.
	ValidationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexec_validation_rejections_total",
			Help: "Validation rejections",
		},
		[]string{"reason"},
	)

	// ExecutionsInFlight tracks submissions currently being executed.
	ExecutionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codexec_executions_in_flight",
			Help: "Executions in flight",
		},
	)

	// WorkspaceCleanupFailuresTotal counts workspaces that could not be removed.
	WorkspaceCleanupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codexec_workspace_cleanup_failures_total",
			Help: "Workspace cleanup failures",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by admission control.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codexec_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ExecutionsTotal,
		ExecutionDuration,
		TestCasesTotal,
		ValidationRejectionsTotal,
		ExecutionsInFlight,
		WorkspaceCleanupFailuresTotal,
		RateLimitRejectedTotal,
	)
}
