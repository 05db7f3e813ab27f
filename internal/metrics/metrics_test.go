package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	// promauto already registers these on package init; just verify they
	// exist so a renamed/removed metric fails loudly here instead of at
	// first use.
	assert.NotNil(t, ClaimAttempts)
	assert.NotNil(t, ClaimDuration)
	assert.NotNil(t, LeaseRenewals)
	assert.NotNil(t, OrphanRepatriations)
	assert.NotNil(t, TasksCreated)
	assert.NotNil(t, TasksFinished)
	assert.NotNil(t, ChunkItemsProcessed)
	assert.NotNil(t, ChunkDuration)
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, HTTPRequestsTotal)
	assert.NotNil(t, CoordinationOperationDuration)
	assert.NotNil(t, CoordinationErrors)
	assert.NotNil(t, WebSocketConnections)
	assert.NotNil(t, WebSocketMessages)
}

func TestRecordClaimAttempt(t *testing.T) {
	ClaimAttempts.Reset()

	RecordClaimAttempt(true, 0.001)
	RecordClaimAttempt(false, 0.002)

	assert.Equal(t, float64(1), testutil.ToFloat64(ClaimAttempts.WithLabelValues("won")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ClaimAttempts.WithLabelValues("lost")))
}

func TestRecordLeaseRenewal(t *testing.T) {
	LeaseRenewals.Reset()

	RecordLeaseRenewal(true)
	RecordLeaseRenewal(true)
	RecordLeaseRenewal(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(LeaseRenewals.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(LeaseRenewals.WithLabelValues("expired")))
}

func TestRecordOrphanRepatriation(t *testing.T) {
	before := testutil.ToFloat64(OrphanRepatriations)
	RecordOrphanRepatriation()
	assert.Equal(t, before+1, testutil.ToFloat64(OrphanRepatriations))
}

func TestRecordTaskFinished(t *testing.T) {
	TasksFinished.Reset()

	RecordTaskFinished("complete")
	RecordTaskFinished("error")
	RecordTaskFinished("complete")

	assert.Equal(t, float64(2), testutil.ToFloat64(TasksFinished.WithLabelValues("complete")))
	assert.Equal(t, float64(1), testutil.ToFloat64(TasksFinished.WithLabelValues("error")))
}

func TestRecordChunk(t *testing.T) {
	before := testutil.ToFloat64(ChunkItemsProcessed)
	RecordChunk(100, 0.5)
	assert.Equal(t, before+100, testutil.ToFloat64(ChunkItemsProcessed))
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestDuration.Reset()
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("GET", "/api/v1/tasks", "200", 0.05)
	RecordHTTPRequest("POST", "/admin/tasks/1/pause", "204", 0.01)

	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/tasks", "200")))
}

func TestRecordCoordinationOperationAndError(t *testing.T) {
	CoordinationErrors.Reset()

	RecordCoordinationOperation("claim", 0.001)
	RecordCoordinationError("claim")

	assert.Equal(t, float64(1), testutil.ToFloat64(CoordinationErrors.WithLabelValues("claim")))
}

func TestSetWebSocketConnections(t *testing.T) {
	SetWebSocketConnections(0)
	SetWebSocketConnections(10)
	SetWebSocketConnections(5)
}

func TestRecordWebSocketMessage(t *testing.T) {
	WebSocketMessages.Reset()

	RecordWebSocketMessage("task.started")
	RecordWebSocketMessage("task.completed")

	assert.Equal(t, float64(1), testutil.ToFloat64(WebSocketMessages.WithLabelValues("task.started")))
}
