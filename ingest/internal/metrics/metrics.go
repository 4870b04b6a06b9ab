package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accesslog_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"endpoint", "status"},
	)

	// Ingestion metrics
	EventsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accesslog_events_enqueued_total",
			Help: "Total number of access events accepted by the pipeline",
		},
	)

	EventsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accesslog_events_persisted_total",
			Help: "Total number of access events written to the sink",
		},
		[]string{"source"},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accesslog_events_failed_total",
			Help: "Total number of access events in failed flushes",
		},
		[]string{"kind"},
	)

	EventsReadmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accesslog_events_readmitted_total",
			Help: "Total number of access events re-admitted to the queue after a transient failure",
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accesslog_events_dropped_total",
			Help: "Total number of access events dropped",
		},
		[]string{"reason"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "accesslog_queue_depth",
			Help: "Current depth of the in-memory event queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "accesslog_queue_capacity",
			Help: "Maximum capacity of the in-memory event queue",
		},
	)

	// Flush metrics
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accesslog_flush_duration_seconds",
			Help:    "Duration of sink bulk inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accesslog_flush_batch_size",
			Help:    "Number of records per flush batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	FlushTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accesslog_flush_triggers_total",
			Help: "Total number of flush attempts by trigger",
		},
		[]string{"trigger"},
	)

	// Secondary buffer metrics
	SecondaryAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accesslog_secondary_appended_total",
			Help: "Total number of access events appended to the secondary buffer",
		},
	)

	SecondaryDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accesslog_secondary_drained_total",
			Help: "Total number of access events drained from the secondary buffer and persisted",
		},
	)

	SecondaryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accesslog_secondary_errors_total",
			Help: "Total number of secondary buffer operation errors",
		},
		[]string{"op"},
	)

	// Dead-letter metrics
	DeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accesslog_dead_lettered_total",
			Help: "Total number of access events written to the dead-letter queue",
		},
		[]string{"reason"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accesslog_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
