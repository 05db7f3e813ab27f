package coordination

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EventKind distinguishes a put from a delete in a watch stream.
type EventKind int

const (
	EventPut EventKind = iota
	EventDelete
)

// Event is a single key mutation observed on a watch.
type Event struct {
	Kind  EventKind
	Key   string
	Value []byte
}

// WatchPrefix opens a watch over every key under prefix starting at the
// current revision and returns a channel of individual events. The caller
// must open this watch BEFORE listing the same prefix if it needs to avoid
// the lost-wakeup race described in etcd_task.py's next_task(): list,
// then watch, can miss a Put that lands in the gap between the two calls.
//
// The returned channel is closed when ctx is canceled.
func (c *Client) WatchPrefix(ctx context.Context, prefix string) <-chan Event {
	out := make(chan Event, 64)
	watchCh := c.etcd.Watch(ctx, prefix, clientv3.WithPrefix())

	go func() {
		defer close(out)
		for resp := range watchCh {
			if resp.Err() != nil {
				return
			}
			for _, ev := range resp.Events {
				kind := EventPut
				if ev.Type == clientv3.EventTypeDelete {
					kind = EventDelete
				}
				select {
				case out <- Event{Kind: kind, Key: string(ev.Kv.Key), Value: ev.Kv.Value}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
