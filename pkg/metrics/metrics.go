// Package metrics defines the Prometheus metrics exported by custsync.
// All metrics register with the default registry through promauto and are
// served by the API on /metrics.
//
// Queries worth keeping on a dashboard:
//
//	# Records ingested per second, by collection
//	sum by (collection) (rate(custsync_records_committed_total[5m]))
//
//	# Upstream failure rate by kind
//	rate(custsync_fetch_errors_total[5m])
//
//	# P95 page latency
//	histogram_quantile(0.95, rate(custsync_page_fetch_duration_seconds_bucket[5m]))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts pages committed to the record cache
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custsync_pages_fetched_total",
			Help: "Total number of upstream pages committed",
		},
		[]string{"collection"},
	)

	// RecordsCommitted counts records written to the record cache
	RecordsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custsync_records_committed_total",
			Help: "Total number of records upserted into the cache",
		},
		[]string{"collection"},
	)

	// FetchErrors counts failed page requests after request-level retries
	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custsync_fetch_errors_total",
			Help: "Total number of failed upstream page fetches",
		},
		[]string{"kind"}, // "transient_fetch", "fatal_fetch"
	)

	// PageFetchDuration tracks upstream latency per page, retries included
	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custsync_page_fetch_duration_seconds",
			Help:    "Upstream page fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// JobTransitions counts jobs reaching a status
	JobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custsync_jobs_total",
			Help: "Total number of job status transitions by target status",
		},
		[]string{"status"},
	)

	// ActiveJobs is the number of jobs currently executing
	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custsync_active_jobs",
			Help: "Number of jobs currently running",
		},
	)

	// MaterializedRows counts rows written to CSV artifacts
	MaterializedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custsync_materialized_rows_total",
			Help: "Total number of rows written to materialized artifacts",
		},
		[]string{"collection"},
	)
)
