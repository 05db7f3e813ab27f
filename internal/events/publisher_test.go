package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("task.created"), EventTaskCreated)
	assert.Equal(t, EventType("task.started"), EventTaskStarted)
	assert.Equal(t, EventType("task.paused"), EventTaskPaused)
	assert.Equal(t, EventType("task.resuming"), EventTaskResuming)
	assert.Equal(t, EventType("task.complete"), EventTaskComplete)
	assert.Equal(t, EventType("task.error"), EventTaskError)
	assert.Equal(t, EventType("task.canceled"), EventTaskCanceled)
}

func TestNewEvent(t *testing.T) {
	data := map[string]interface{}{"task_id": "batch-123"}

	event := NewEvent(EventTaskStarted, data)

	assert.Equal(t, EventTaskStarted, event.Type)
	assert.Equal(t, data, event.Data)
	assert.False(t, event.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
}

func TestEvent_ToJSON(t *testing.T) {
	event := &Event{
		Type:      EventTaskComplete,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Data: map[string]interface{}{
			"task_id": "batch-456",
		},
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	var parsed map[string]interface{}
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "task.complete", parsed["type"])
	assert.NotEmpty(t, parsed["timestamp"])
	assert.NotNil(t, parsed["data"])
}

func TestFromJSON(t *testing.T) {
	jsonData := `{
		"type": "task.error",
		"timestamp": "2024-01-15T10:30:00Z",
		"data": {"task_id": "batch-789", "error": "timeout"}
	}`

	event, err := FromJSON([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, EventTaskError, event.Type)
	assert.Equal(t, "batch-789", event.Data["task_id"])
	assert.Equal(t, "timeout", event.Data["error"])
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("invalid json"))
	assert.Error(t, err)
}

func TestEvent_RoundTrip(t *testing.T) {
	original := NewEvent(EventTaskResuming, map[string]interface{}{
		"task_id": "batch-1",
	})

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, original.Type, restored.Type)
	assert.Equal(t, original.Data["task_id"], restored.Data["task_id"])
}

func TestTaskEventData(t *testing.T) {
	data := TaskEventData("batch-123", map[string]interface{}{"error": "timeout"})

	assert.Equal(t, "batch-123", data["task_id"])
	assert.Equal(t, "timeout", data["error"])
}

func TestTaskEventData_NoExtra(t *testing.T) {
	data := TaskEventData("batch-456", nil)

	assert.Equal(t, "batch-456", data["task_id"])
	assert.Len(t, data, 1)
}

func TestEventTypeForStatus(t *testing.T) {
	tests := []struct {
		status string
		want   EventType
		ok     bool
	}{
		{"running", EventTaskStarted, true},
		{"paused", EventTaskPaused, true},
		{"resuming", EventTaskResuming, true},
		{"complete", EventTaskComplete, true},
		{"error", EventTaskError, true},
		{"canceled", EventTaskCanceled, true},
		{"pending", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got, ok := eventTypeForStatus(tt.status)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
