// Package metrics provides centralized Prometheus metrics for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics track source fetch outcomes.
var (
	// SourceFetchTotal counts per-source fetch attempts by outcome
	SourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_total",
			Help: "Total source fetch attempts",
		},
		[]string{"source_type", "outcome"},
	)

	// ArticlesInsertedTotal counts newly persisted articles
	ArticlesInsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "articles_inserted_total",
			Help: "Total number of new articles persisted",
		},
	)

	// ArticlesDeduplicatedTotal counts items dropped by deduplication
	ArticlesDeduplicatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_deduplicated_total",
			Help: "Total items skipped as duplicates",
		},
		[]string{"stage"},
	)

	// SourceFetchDuration measures per-source fetch duration
	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Per-source fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"source_type"},
	)
)

// Extraction metrics track the content extractor's strategies.
var (
	// ExtractionAttemptsTotal counts extraction attempts by strategy and outcome
	ExtractionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_attempts_total",
			Help: "Content extraction attempts by strategy",
		},
		[]string{"strategy", "outcome"},
	)

	// ExtractionDuration measures full extraction duration per URL
	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Full extraction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
)

// AI metrics track enrichment calls and outcomes.
var (
	// AIRequestsTotal counts AI provider requests by operation and outcome
	AIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "AI provider requests",
		},
		[]string{"operation", "outcome"},
	)

	// AIRequestDuration measures AI call latency
	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
		},
		[]string{"operation"},
	)

	// AICacheHitsTotal counts analysis responses served from the file cache
	AICacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_cache_hits_total",
			Help: "AI analysis responses served from cache",
		},
	)
)

// Queue metrics track the database queue.
var (
	// DBQueueDepth reports current queue depth per queue
	DBQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_queue_depth",
			Help: "Current database queue depth",
		},
		[]string{"queue"},
	)

	// DBQueueProcessedTotal counts processed tasks per queue and outcome
	DBQueueProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queue_processed_total",
			Help: "Database queue tasks processed",
		},
		[]string{"queue", "outcome"},
	)

	// DBQueueTaskDuration measures task execution duration per queue
	DBQueueTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_queue_task_duration_seconds",
			Help:    "Database task duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"queue"},
	)
)

// Cycle metrics track orchestrator runs.
var (
	// CycleDuration measures full pipeline cycle duration
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_cycle_duration_seconds",
			Help:    "Full pipeline cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// CycleErrorsTotal counts per-cycle recorded errors
	CycleErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_cycle_errors_total",
			Help: "Errors recorded across pipeline cycles",
		},
	)

	// DigestPartsSentTotal counts dispatched digest message parts
	DigestPartsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digest_parts_sent_total",
			Help: "Telegram digest message parts sent",
		},
	)
)

// RecordSourceFetch records one per-source fetch outcome with duration.
func RecordSourceFetch(sourceType string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	SourceFetchTotal.WithLabelValues(sourceType, outcome).Inc()
	SourceFetchDuration.WithLabelValues(sourceType).Observe(d.Seconds())
}

// RecordExtraction records one strategy attempt.
func RecordExtraction(strategy string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	ExtractionAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordAIRequest records one AI call.
func RecordAIRequest(operation string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	AIRequestsTotal.WithLabelValues(operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}
