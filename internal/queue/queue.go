// Package queue implements the claim protocol described in spec §4.4: the
// transactional dequeue that lets any number of workers race for queued
// tasks such that exactly one wins per task, plus the watch-before-list
// blocking dequeue (next_task) that lets a worker wait efficiently for new
// work instead of polling.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/logger"
	"github.com/vectorq/taskqueue/internal/metrics"
	"github.com/vectorq/taskqueue/internal/task"
)

// Queue is a worker's view of the claim protocol, bound to one identity
// and one lease TTL (spec §6 recommends 10s).
type Queue struct {
	client   *coordination.Client
	identity string
	ttl      time.Duration
}

// New builds a Queue. identity is the value written to claims/{id}
// (spec §6's VECTORIZER_IDENTITY; cmd/worker defaults it to os.Hostname(),
// not resolved to a fully qualified domain name); ttl is the
// lease duration granted on every successful claim.
func New(client *coordination.Client, identity string, ttl time.Duration) *Queue {
	return &Queue{client: client, identity: identity, ttl: ttl}
}

// Claim attempts to atomically take ownership of task id, mirroring
// TaskQueue.claim_task in original_source/etcd_task.py:
//   - precondition: claims/{id} does not exist
//   - on success: delete queue/{id}, put claims/{id}=identity under a
//     freshly granted lease
//   - on failure: best-effort delete the stray queue/{id} marker (a lost
//     race is harmless — the other winner already removed it, or will)
//
// Returns (nil, nil) if the claim was lost to a competing worker, never an
// error for that case — double-claim contention is expected, not
// exceptional.
func (q *Queue) Claim(ctx context.Context, id string) (*task.Handle, error) {
	start := time.Now()
	won := false
	defer func() {
		metrics.RecordClaimAttempt(won, time.Since(start).Seconds())
	}()

	ttlSeconds := int64(q.ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}

	lease, err := q.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return nil, fmt.Errorf("queue: grant lease for %s: %w", id, err)
	}

	txn := q.client.NewTxn()
	txn.CompareVersion(q.client.ClaimKey(id), 0)
	txn.OnSuccessDelete(q.client.QueueKey(id))
	txn.OnSuccessPut(q.client.ClaimKey(id), q.identity, lease)
	txn.OnFailureDelete(q.client.QueueKey(id))

	ok, err := txn.Commit(ctx)
	if err != nil {
		_ = lease.Revoke(ctx)
		return nil, fmt.Errorf("queue: claim %s: %w", id, err)
	}
	if !ok {
		_ = lease.Revoke(ctx)
		return nil, nil
	}

	handle, err := task.Load(ctx, q.client, id, lease, q.identity)
	if err != nil {
		_ = lease.Revoke(ctx)
		return nil, fmt.Errorf("queue: load claimed task %s: %w", id, err)
	}
	won = true
	return handle, nil
}

// NextTask blocks until a task is claimed, mirroring
// TaskQueue.next_task(): open a watch on queue/ before listing (so a task
// enqueued in the gap between opening the watch and finishing the list is
// never missed), drain the initial backlog oldest-first, then fall back to
// consuming live watch events.
func (q *Queue) NextTask(ctx context.Context) (*task.Handle, error) {
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	events := q.client.WatchPrefix(watchCtx, q.client.QueuePrefix())

	kvs, err := q.client.ListByCreateOrder(ctx, q.client.QueuePrefix())
	if err != nil {
		return nil, fmt.Errorf("queue: list queue: %w", err)
	}

	for _, kv := range kvs {
		id := q.client.TaskIDFromQueueKey(kv.Key)
		handle, err := q.Claim(ctx, id)
		if err != nil {
			return nil, err
		}
		if handle != nil {
			return handle, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("queue: watch closed")
			}
			if ev.Kind != coordination.EventPut {
				continue
			}
			id := q.client.TaskIDFromQueueKey(ev.Key)
			handle, err := q.Claim(ctx, id)
			if err != nil {
				return nil, err
			}
			if handle != nil {
				return handle, nil
			}
		}
	}
}

// Enqueue places a runnable task onto the queue, mirroring
// TaskMonitor.enqueue(): a no-op, transactional and idempotent, unless the
// task is both unclaimed and not already queued. Called by the monitor,
// never by a worker.
func Enqueue(ctx context.Context, client *coordination.Client, id string) error {
	txn := client.NewTxn()
	txn.CompareVersion(client.ClaimKey(id), 0)
	txn.CompareVersion(client.QueueKey(id), 0)
	txn.OnSuccessPut(client.QueueKey(id), "", nil)

	ok, err := txn.Commit(ctx)
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", id, err)
	}
	if ok {
		logger.Debug().Str("task_id", id).Msg("task enqueued")
	}
	return nil
}
