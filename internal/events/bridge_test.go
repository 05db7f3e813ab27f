package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_PublishSubscribeAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBridge(nil)
	ch, err := b.SubscribeAll(ctx)
	require.NoError(t, err)

	event := NewEvent(EventTaskStarted, TaskEventData("batch-1", nil))
	require.NoError(t, b.Publish(ctx, event))

	select {
	case got := <-ch:
		assert.Equal(t, EventTaskStarted, got.Type)
		assert.Equal(t, "batch-1", got.Data["task_id"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBridge_SubscribeFiltersByType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBridge(nil)
	ch, err := b.Subscribe(ctx, EventTaskComplete)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, NewEvent(EventTaskStarted, TaskEventData("batch-1", nil))))
	require.NoError(t, b.Publish(ctx, NewEvent(EventTaskComplete, TaskEventData("batch-1", nil))))

	select {
	case got := <-ch:
		assert.Equal(t, EventTaskComplete, got.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case got := <-ch:
		t.Fatalf("unexpected second event: %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridge_HandlePutEmitsCreatedThenTransition(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(nil)
	ch, err := b.SubscribeAll(ctx)
	require.NoError(t, err)

	b.handlePut(ctx, "batch-1", []byte(`{"status":"pending"}`))
	b.handlePut(ctx, "batch-1", []byte(`{"status":"running"}`))

	first := recvEvent(t, ch)
	assert.Equal(t, EventTaskCreated, first.Type)

	second := recvEvent(t, ch)
	assert.Equal(t, EventTaskStarted, second.Type)
}

func TestBridge_HandlePutIgnoresUnchangedStatus(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(nil)
	ch, err := b.SubscribeAll(ctx)
	require.NoError(t, err)

	b.handlePut(ctx, "batch-1", []byte(`{"status":"running"}`))
	recvEvent(t, ch) // task.created
	recvEvent(t, ch) // task.started

	b.handlePut(ctx, "batch-1", []byte(`{"status":"running"}`))

	select {
	case got := <-ch:
		t.Fatalf("unexpected event for unchanged status: %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridge_HandlePutIncludesError(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(nil)
	ch, err := b.SubscribeAll(ctx)
	require.NoError(t, err)

	b.handlePut(ctx, "batch-1", []byte(`{"status":"error","error":"boom"}`))
	recvEvent(t, ch) // task.created

	errEvent := recvEvent(t, ch)
	assert.Equal(t, EventTaskError, errEvent.Type)
	assert.Equal(t, "boom", errEvent.Data["error"])
}

func TestBridge_Close(t *testing.T) {
	b := NewBridge(nil)
	assert.NoError(t, b.Close())
}

func recvEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
