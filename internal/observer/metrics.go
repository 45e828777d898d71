package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for ingestion event metrics
	eventLabels = []string{"event_type"}
	// Labels for mutation pipeline metrics
	mutationLabels = []string{"entity", "operation", "status"}
	// Labels for database operations
	dbOperationLabels = []string{"operation", "entity", "status"}

	// Ingestion counters
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_engine_events_received_total",
			Help: "Total number of entity-change events received from NATS.",
		},
		eventLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_engine_events_processed_total",
			Help: "Total number of entity-change events successfully processed and acknowledged.",
		},
		eventLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_engine_events_failed_total",
			Help: "Total number of entity-change events that failed processing.",
		},
		eventLabels,
	)
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagement_engine_event_processing_duration_seconds",
			Help:    "Histogram of entity-change event processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventLabels,
	)

	// Mutation pipeline counters
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_engine_mutations_total",
			Help: "Total number of dispatched entity mutations, labeled by outcome.",
		},
		mutationLabels,
	)
	ConflictRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_engine_conflict_retries_total",
			Help: "Total number of transaction retries caused by aggregate-row contention.",
		},
		[]string{"entity", "operation"},
	)

	// Database operation histogram
	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagement_engine_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)

	// Materializer metrics
	MaterializerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_engine_materializer_runs_total",
			Help: "Total number of overview materializer runs, labeled by status.",
		},
		[]string{"status"},
	)
	MaterializerRunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engagement_engine_materializer_run_duration_seconds",
			Help:    "Histogram of full overview materializer run durations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)
	MaterializerLastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engagement_engine_materializer_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last fully successful materializer run.",
		},
	)
	MaterializerCompaniesRefreshedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_engine_materializer_companies_refreshed_total",
			Help: "Total number of per-company overview rows recomputed.",
		},
	)
)

// InitMetrics enables or disables metric collection globally.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncEventsReceived increments the received counter for an event type.
func IncEventsReceived(eventType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType).Inc()
}

// IncEventsProcessed increments the processed counter for an event type.
func IncEventsProcessed(eventType string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType).Inc()
}

// IncEventsFailed increments the failed counter for an event type.
func IncEventsFailed(eventType string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType).Inc()
}

// ObserveEventProcessingDuration records the duration of one event handling.
func ObserveEventProcessingDuration(eventType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType).Observe(duration.Seconds())
}

// IncMutation records the outcome of one dispatched mutation.
func IncMutation(entity, operation string, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	MutationsTotal.WithLabelValues(entity, operation, status).Inc()
}

// IncConflictRetry records one contention-triggered transaction retry.
func IncConflictRetry(entity, operation string) {
	if !metricsEnabled {
		return
	}
	ConflictRetriesTotal.WithLabelValues(entity, operation).Inc()
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}

// ObserveMaterializerRun records a full materializer run.
func ObserveMaterializerRun(duration time.Duration, refreshed int, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	MaterializerRunsTotal.WithLabelValues(status).Inc()
	MaterializerRunDurationSeconds.Observe(duration.Seconds())
	MaterializerCompaniesRefreshedTotal.Add(float64(refreshed))
	if err == nil {
		MaterializerLastSuccessTimestamp.SetToCurrentTime()
	}
}
