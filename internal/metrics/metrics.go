package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks logical operations per kind and result (success, failure, cached)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cogcall_operations_total",
			Help: "Total number of logical operations",
		},
		[]string{"kind", "result"},
	)

	// FailuresTotal tracks terminal failures per kind and failure classification
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cogcall_failures_total",
			Help: "Total number of terminal failures",
		},
		[]string{"kind", "failure"},
	)

	// RetriesTotal tracks scheduled retries
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cogcall_retries_total",
			Help: "Total number of retries",
		},
		[]string{"kind", "failure"},
	)

	// OperationLatency tracks time spent in attempts, excluding backoff waits
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cogcall_operation_latency_seconds",
			Help:    "Operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// VolumeTotal tracks processed volume (characters or bytes)
	VolumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cogcall_volume_units_total",
			Help: "Total processed volume in characters or bytes",
		},
		[]string{"kind"},
	)

	// EstimatedCostTotal tracks estimated spend
	EstimatedCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cogcall_estimated_cost_total",
			Help: "Estimated cost of processed volume",
		},
		[]string{"kind"},
	)

	// CacheLookups tracks response cache lookups by result (hit, miss)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cogcall_cache_lookups_total",
			Help: "Total number of response cache lookups",
		},
		[]string{"kind", "result"},
	)

	// MeteringFlushes tracks call record batches written by the collector
	MeteringFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cogcall_metering_flushes_total",
			Help: "Total number of call record flushes",
		},
		[]string{"result"},
	)

	// BudgetSpent tracks today's estimated spend
	BudgetSpent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cogcall_budget_spent",
			Help: "Estimated spend since the last daily reset",
		},
	)

	// RecordsPruned tracks call records removed by retention
	RecordsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cogcall_records_pruned_total",
			Help: "Total number of call records deleted by retention",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cogcall_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
