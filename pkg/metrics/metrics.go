package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DocumentsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_documents_generated_total",
			Help: "Total number of billing documents generated",
		},
		[]string{"kind", "status"}, // kind: invoice, expense; status: success, failed
	)

	MilestonesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_milestones_processed_total",
			Help: "Total number of milestones processed by the batch generator",
		},
	)

	ArtifactOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artifact_store_operation_duration_seconds",
			Help:    "Artifact store operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"}, // operation: upload, download, delete
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	DocumentsMailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_documents_mailed_total",
			Help: "Total number of documents emailed to clients",
		},
		[]string{"status"}, // status: success, failed
	)

	SlowQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries exceeding the slow query threshold",
		},
	)

	DeadLetteredMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_dead_lettered_messages_total",
			Help: "Total number of messages parked on the dead letter queue",
		},
		[]string{"routing_key"},
	)
)

// IncrementDocumentGenerated counts one generated (or failed) document.
func IncrementDocumentGenerated(kind, status string) {
	DocumentsGenerated.WithLabelValues(kind, status).Inc()
}

// ObserveArtifactOperation records the duration of one artifact store call.
func ObserveArtifactOperation(operation string, duration time.Duration) {
	ArtifactOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDBQueryDuration records the duration of one database query.
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration records the duration of one HTTP request.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementDocumentMailed counts one mail delivery attempt outcome.
func IncrementDocumentMailed(status string) {
	DocumentsMailed.WithLabelValues(status).Inc()
}

// IncrementSlowQuery counts one query over the slow threshold.
func IncrementSlowQuery() {
	SlowQueries.Inc()
}

// IncrementDeadLettered counts one message parked on the DLQ.
func IncrementDeadLettered(routingKey string) {
	DeadLetteredMessages.WithLabelValues(routingKey).Inc()
}
