package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Claim metrics — spec §4.4's contended CAS dequeue.
	ClaimAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorqueue_claim_attempts_total",
			Help: "Total number of task claim attempts",
		},
		[]string{"result"}, // "won" | "lost"
	)

	ClaimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vectorqueue_claim_duration_seconds",
			Help:    "Time to complete a claim transaction",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	// Lease metrics — spec §4.3's liveness checkpoint.
	LeaseRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorqueue_lease_renewals_total",
			Help: "Total number of claim lease renewals",
		},
		[]string{"result"}, // "ok" | "expired"
	)

	// Orphan repatriation metrics — internal/monitor.
	OrphanRepatriations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vectorqueue_orphan_repatriations_total",
			Help: "Total number of tasks recovered from a dead worker's claim",
		},
	)

	// Task lifecycle metrics.
	TasksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vectorqueue_tasks_created_total",
			Help: "Total number of tasks created",
		},
	)

	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorqueue_tasks_finished_total",
			Help: "Total number of tasks reaching a terminal or error status",
		},
		[]string{"status"}, // "complete" | "error" | "canceled"
	)

	// Chunk throughput metrics — internal/worker's chunk loop.
	ChunkItemsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vectorqueue_chunk_items_processed_total",
			Help: "Total number of input items processed across all chunks",
		},
	)

	ChunkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vectorqueue_chunk_duration_seconds",
			Help:    "Time to process one chunk",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
	)

	// HTTP metrics — internal/api's status/observability surface.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vectorqueue_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorqueue_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Coordination (etcd) metrics.
	CoordinationOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vectorqueue_coordination_operation_duration_seconds",
			Help:    "etcd operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
		[]string{"operation"},
	)

	CoordinationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorqueue_coordination_errors_total",
			Help: "Total number of etcd operation errors",
		},
		[]string{"operation"},
	)

	// WebSocket metrics — the live task-lifecycle event feed.
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vectorqueue_websocket_connections",
			Help: "Current number of WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorqueue_websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)
)

// RecordClaimAttempt records whether a claim transaction won or lost the
// race, and how long the transaction took.
func RecordClaimAttempt(won bool, duration float64) {
	result := "lost"
	if won {
		result = "won"
	}
	ClaimAttempts.WithLabelValues(result).Inc()
	ClaimDuration.Observe(duration)
}

// RecordLeaseRenewal records a lease refresh outcome.
func RecordLeaseRenewal(ok bool) {
	result := "expired"
	if ok {
		result = "ok"
	}
	LeaseRenewals.WithLabelValues(result).Inc()
}

// RecordOrphanRepatriation increments the orphan-recovery counter.
func RecordOrphanRepatriation() {
	OrphanRepatriations.Inc()
}

// RecordTaskCreated increments the task-creation counter.
func RecordTaskCreated() {
	TasksCreated.Inc()
}

// RecordTaskFinished records a task reaching a terminal status.
func RecordTaskFinished(status string) {
	TasksFinished.WithLabelValues(status).Inc()
}

// RecordChunk records one processed chunk's item count and duration.
func RecordChunk(items int, duration float64) {
	ChunkItemsProcessed.Add(float64(items))
	ChunkDuration.Observe(duration)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCoordinationOperation records an etcd operation's duration.
func RecordCoordinationOperation(operation string, duration float64) {
	CoordinationOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCoordinationError records an etcd operation failure.
func RecordCoordinationError(operation string) {
	CoordinationErrors.WithLabelValues(operation).Inc()
}

// SetWebSocketConnections sets the WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a WebSocket message.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}
