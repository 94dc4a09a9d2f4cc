package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queries_total",
		Help: "Total number of answered or failed questions",
	}, []string{"source", "status"})

	QueryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "query_latency_seconds",
		Help:    "Latency of the question-to-result pipeline",
		Buckets: prometheus.DefBuckets,
	})

	ModelFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_fallbacks_total",
		Help: "Total number of model gateway failures that fell back to pattern rules",
	}, []string{"reason"})

	UnsafeSQLRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unsafe_sql_rejected_total",
		Help: "Total number of statements rejected by the read-only check",
	})

	RowsTruncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rows_truncated_total",
		Help: "Total number of results cut at the row cap",
	})

	ChartsRenderedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charts_rendered_total",
		Help: "Total number of chart selections by kind",
	}, []string{"kind"})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Total number of result cache lookups",
	}, []string{"result"})

	StreamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_events_total",
		Help: "Total number of streamed events by status",
	}, []string{"status"})

	StreamsAbortedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streams_aborted_total",
		Help: "Total number of streams abandoned by the consumer",
	})

	QueryEventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_events_consumed_total",
		Help: "Total number of query outcome events consumed by the audit worker",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
