package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/logger"
)

// Bridge implements Publisher by watching the tasks/ keyspace and turning
// each observed status change into an Event, replacing the teacher's
// RedisPubSub (built on Redis channels a publisher writes to directly).
// Here nothing calls Publish() in normal operation — Run derives every
// event from etcd watch traffic — but Publish stays on the interface so
// tests can inject synthetic events without a live etcd.
type Bridge struct {
	client *coordination.Client

	mu   sync.Mutex
	subs map[chan *Event]struct{}

	lastStatus map[string]string
}

// NewBridge builds a Bridge bound to client. Call Run once to start
// forwarding watch events to subscribers.
func NewBridge(client *coordination.Client) *Bridge {
	return &Bridge{
		client:     client,
		subs:       make(map[chan *Event]struct{}),
		lastStatus: make(map[string]string),
	}
}

// Run watches tasks/ and publishes one Event per observed status
// transition until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	taskEvents := b.client.WatchPrefix(ctx, b.client.TasksPrefix())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-taskEvents:
			if !ok {
				return fmt.Errorf("events: bridge watch closed")
			}
			if ev.Kind != coordination.EventPut {
				continue
			}
			b.handlePut(ctx, b.client.TaskIDFromTaskKey(ev.Key), ev.Value)
		}
	}
}

func (b *Bridge) handlePut(ctx context.Context, id string, value []byte) {
	var doc struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(value, &doc); err != nil {
		logger.Error().Err(err).Str("task_id", id).Msg("events: decode task put")
		return
	}

	b.mu.Lock()
	prev := b.lastStatus[id]
	b.lastStatus[id] = doc.Status
	b.mu.Unlock()

	if prev == doc.Status {
		return
	}

	if prev == "" {
		_ = b.Publish(ctx, NewEvent(EventTaskCreated, TaskEventData(id, nil)))
	}

	eventType, ok := eventTypeForStatus(doc.Status)
	if !ok {
		return
	}

	extra := map[string]interface{}{}
	if doc.Error != "" {
		extra["error"] = doc.Error
	}
	_ = b.Publish(ctx, NewEvent(eventType, TaskEventData(id, extra)))
}

// Publish fans event out to every registered subscriber channel,
// dropping it for any subscriber whose buffer is full rather than
// blocking the bridge's watch loop.
func (b *Bridge) Publish(ctx context.Context, event *Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			logger.Warn().Str("event_type", string(event.Type)).Msg("events: subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Subscribe returns a channel receiving only events whose type is in
// eventTypes, closed when ctx is canceled.
func (b *Bridge) Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error) {
	want := make(map[EventType]bool, len(eventTypes))
	for _, et := range eventTypes {
		want[et] = true
	}
	return b.subscribe(ctx, func(et EventType) bool { return want[et] })
}

// SubscribeAll returns a channel receiving every event, closed when ctx is
// canceled.
func (b *Bridge) SubscribeAll(ctx context.Context) (<-chan *Event, error) {
	return b.subscribe(ctx, func(EventType) bool { return true })
}

func (b *Bridge) subscribe(ctx context.Context, match func(EventType) bool) (<-chan *Event, error) {
	raw := make(chan *Event, 100)

	b.mu.Lock()
	b.subs[raw] = struct{}{}
	b.mu.Unlock()

	out := make(chan *Event, 100)
	go func() {
		defer close(out)
		defer func() {
			b.mu.Lock()
			delete(b.subs, raw)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-raw:
				if !ok {
					return
				}
				if match(event.Type) {
					select {
					case out <- event:
					default:
						logger.Warn().Str("event_type", string(event.Type)).Msg("events: filtered subscriber buffer full, dropping event")
					}
				}
			}
		}
	}()

	return out, nil
}

// Close clears the subscription set, so later events reach no current
// subscriber. It closes no subscriber channel; individual Subscribe
// goroutines exit on their own ctx cancellation.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[chan *Event]struct{})
	return nil
}
