package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Task and run outcomes
	ResultSuccess        = "success"
	ResultFailure        = "failure"
	ResultUpstreamFailed = "upstream_failed"

	// Record kinds
	RecordKindExtracted   = "extracted"
	RecordKindMedal       = "medal"
	RecordKindSkipped     = "skipped"
	RecordKindTransformed = "transformed"

	// Aggregate tables
	TableMedalCounts   = "MedalCounts"
	TableCountryCounts = "CountryCounts"

	// HTTP endpoints
	EndpointHealth        = "health"
	EndpointRuns          = "runs"
	EndpointMedalCounts   = "medal_counts"
	EndpointCountryCounts = "country_counts"

	// Database operations
	DBOpReplaceAggregates = "replace_aggregates"
	DBOpGetMedalCounts    = "get_medal_counts"
	DBOpGetCountryCounts  = "get_country_counts"
	DBOpCountRows         = "count_rows"
	DBOpCreateRun         = "create_run"
	DBOpFinishRun         = "finish_run"
	DBOpRecordAttempt     = "record_attempt"
	DBOpListRuns          = "list_runs"
	DBOpGetRun            = "get_run"
	DBOpListAttempts      = "list_attempts"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Task Metrics
var (
	TaskAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_task_attempts_total",
			Help: "Total number of task attempts by outcome",
		},
		[]string{"pipeline", "task", "result"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etl_task_duration_seconds",
			Help:    "Time spent in a single task attempt",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"pipeline", "task", "result"},
	)

	TaskRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_task_retry_total",
			Help: "Total number of task retries",
		},
		[]string{"pipeline", "task"},
	)
)

// Run Metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"pipeline", "result"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etl_run_duration_seconds",
			Help:    "End to end pipeline run latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
		},
		[]string{"pipeline", "result"},
	)

	LastSuccessfulRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "etl_last_successful_run_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		},
		[]string{"pipeline"},
	)

	SchedulerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "etl_scheduler_active",
			Help: "Whether the scheduler is currently active (1) or not (0)",
		},
	)
)

// Data Metrics
var (
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_records_total",
			Help: "Total number of records processed by kind",
		},
		[]string{"kind"},
	)

	AggregateRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "etl_aggregate_rows",
			Help: "Number of rows currently stored in each aggregate table",
		},
		[]string{"table"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)
