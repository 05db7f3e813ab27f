package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the kind of task lifecycle transition an event
// reports, one per status a task can land in (see spec §4.1's state
// diagram). Renamed from the teacher's task.submitted/worker.joined/etc
// event set — there is no generic task-type or priority concept in this
// protocol, and no separate worker presence feed (see internal/worker's
// identity keys for that).
type EventType string

const (
	EventTaskCreated  EventType = "task.created"
	EventTaskStarted  EventType = "task.started"  // -> running
	EventTaskPaused   EventType = "task.paused"
	EventTaskResuming EventType = "task.resuming"
	EventTaskComplete EventType = "task.complete"
	EventTaskError    EventType = "task.error"
	EventTaskCanceled EventType = "task.canceled"
)

// Event represents a single task lifecycle transition, broadcast to every
// WebSocket client subscribed to its type.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event.
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the event to JSON.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event from JSON.
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher defines the interface for event sources the WebSocket hub can
// subscribe to. The teacher's RedisPubSub implements this against Redis
// Pub/Sub; this repo's Bridge (bridge.go) implements it against an etcd
// watch instead, but the hub-facing contract is unchanged.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error)
	SubscribeAll(ctx context.Context) (<-chan *Event, error)
	Close() error
}

// TaskEventData builds the Data payload for a task lifecycle event.
func TaskEventData(taskID string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{"task_id": taskID}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// eventTypeForStatus maps a task.Status string to the EventType reported
// when a task first reaches it. Kept here (rather than in internal/task,
// which has no reason to know about the event feed) since it's purely a
// naming translation at the watch-bridge boundary.
func eventTypeForStatus(status string) (EventType, bool) {
	switch status {
	case "running":
		return EventTaskStarted, true
	case "paused":
		return EventTaskPaused, true
	case "resuming":
		return EventTaskResuming, true
	case "complete":
		return EventTaskComplete, true
	case "error":
		return EventTaskError, true
	case "canceled":
		return EventTaskCanceled, true
	default:
		return "", false
	}
}
