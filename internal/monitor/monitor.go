// Package monitor implements the singleton-idempotent orphan repatriation
// and enqueue process described in spec §4.5. Any number of monitors may
// run concurrently; every action is a guarded transaction, so their effects
// converge regardless of how many instances are racing.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/logger"
	"github.com/vectorq/taskqueue/internal/metrics"
	"github.com/vectorq/taskqueue/internal/queue"
	"github.com/vectorq/taskqueue/internal/task"
)

// Monitor watches tasks/ and claims/ and keeps the queue/ keyspace
// converged with task state: runnable tasks get a queue marker, and
// running tasks whose claim evaporated get flipped to resuming so the
// same mechanism re-enqueues them with no special-casing.
type Monitor struct {
	client *coordination.Client
}

// New builds a Monitor bound to client.
func New(client *coordination.Client) *Monitor {
	return &Monitor{client: client}
}

// Run performs the initial scan and then processes watch events until ctx
// is canceled. It never returns nil — callers should treat any return as
// fatal (a dropped watch is not retried internally; wrap with
// coordination.Retry at the call site for reconnect-on-blip behavior).
func (m *Monitor) Run(ctx context.Context) error {
	taskEvents := m.client.WatchPrefix(ctx, m.client.TasksPrefix())
	claimEvents := m.client.WatchPrefix(ctx, m.client.ClaimsPrefix())

	if err := m.scan(ctx); err != nil {
		return fmt.Errorf("monitor: initial scan: %w", err)
	}

	logger.Info().Msg("monitor running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-taskEvents:
			if !ok {
				return fmt.Errorf("monitor: task watch closed")
			}
			if ev.Kind != coordination.EventPut {
				continue
			}
			if err := m.handleTaskPut(ctx, m.client.TaskIDFromTaskKey(ev.Key), ev.Value); err != nil {
				logger.Error().Err(err).Msg("monitor: handle task put")
			}

		case ev, ok := <-claimEvents:
			if !ok {
				return fmt.Errorf("monitor: claim watch closed")
			}
			if ev.Kind != coordination.EventDelete {
				continue
			}
			id := m.client.TaskIDFromClaimKey(ev.Key)
			if err := m.pauseIfOrphan(ctx, id); err != nil {
				logger.Error().Err(err).Str("task_id", id).Msg("monitor: pause if orphan")
			}
		}
	}
}

// scan walks tasks/ once at startup in creation order, enqueueing runnable
// tasks and repatriating any that were already orphaned before this
// monitor instance existed (e.g. every monitor died along with the worker).
func (m *Monitor) scan(ctx context.Context) error {
	kvs, err := m.client.ListByCreateOrder(ctx, m.client.TasksPrefix())
	if err != nil {
		return err
	}

	for _, kv := range kvs {
		id := m.client.TaskIDFromTaskKey(kv.Key)

		var st task.State
		if err := json.Unmarshal(kv.Value, &st); err != nil {
			logger.Error().Err(err).Str("task_id", id).Msg("monitor: decode task during scan")
			continue
		}

		switch {
		case st.Status.IsRunnable():
			if err := queue.Enqueue(ctx, m.client, id); err != nil {
				return err
			}
		case st.Status == task.StatusRunning:
			if err := m.pauseIfOrphan(ctx, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleTaskPut enqueues id if the put landed it in a runnable status,
// mirroring the monitor's task-put observer in spec §4.5.
func (m *Monitor) handleTaskPut(ctx context.Context, id string, value []byte) error {
	var st task.State
	if err := json.Unmarshal(value, &st); err != nil {
		return fmt.Errorf("decode task put %s: %w", id, err)
	}
	if !st.Status.IsRunnable() {
		return nil
	}
	return queue.Enqueue(ctx, m.client, id)
}

// pauseIfOrphan reads task id's current state and, if it is running with
// no live claim, value-CAS rewrites it to resuming and clears any stale
// interrupt key in the same transaction, mirroring
// TaskMonitor.pause_if_orphan(). Either guard failing (a worker reacquired
// it, or the state already moved) is treated as success: a no-op, not an
// error.
func (m *Monitor) pauseIfOrphan(ctx context.Context, id string) error {
	raw, ok, err := m.client.Get(ctx, m.client.TaskKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var st task.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return fmt.Errorf("decode task %s: %w", id, err)
	}
	if st.Status != task.StatusRunning {
		return nil
	}

	st.Status = task.StatusResuming
	after, err := json.Marshal(&st)
	if err != nil {
		return err
	}

	txn := m.client.NewTxn()
	txn.CompareValue(m.client.TaskKey(id), raw)
	txn.CompareVersion(m.client.ClaimKey(id), 0)
	txn.OnSuccessPut(m.client.TaskKey(id), string(after), nil)
	txn.OnSuccessDelete(m.client.InterruptKey(id))

	ok, err = txn.Commit(ctx)
	if err != nil {
		return err
	}
	if ok {
		metrics.RecordOrphanRepatriation()
		logger.Warn().Str("task_id", id).Msg("orphan task repatriated, marked resuming")
	}
	return nil
}
