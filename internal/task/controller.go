package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/metrics"
)

// Controller implements the admin-side half of the protocol: everything
// the `manage` CLI (and the read-only HTTP surface) does that does not
// require holding a claim. Every write to tasks/{id} here is a compare-
// guarded transaction (a version compare for Create, a value-CAS for the
// status transitions; spec §3 invariant 3's "except for controller
// transitions from quiescent states"), never a lease. Pausing a running task
// is the one unguarded write: a plain put of interrupt/{id}.
type Controller struct {
	client *coordination.Client
}

// NewController builds a Controller bound to client.
func NewController(client *coordination.Client) *Controller {
	return &Controller{client: client}
}

// Create writes a brand new pending task, mirroring manage.py's `process`
// command. Returns an error if a task with this id already exists.
func (c *Controller) Create(ctx context.Context, id string, init Init) error {
	state := NewPendingState(init)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("task: marshal %s: %w", id, err)
	}

	txn := c.client.NewTxn()
	txn.CompareVersion(c.client.TaskKey(id), 0)
	txn.OnSuccessPut(c.client.TaskKey(id), string(data), nil)

	ok, err := txn.Commit(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task: %s: %w", id, ErrTaskAlreadyExists)
	}
	metrics.RecordTaskCreated()
	return nil
}

// Get reads a task's current state without claiming anything.
func (c *Controller) Get(ctx context.Context, id string) (*State, error) {
	raw, ok, err := c.client.Get(ctx, c.client.TaskKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("task: %s: %w", id, ErrTaskNotFound)
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("task: decode %s: %w", id, err)
	}
	return &st, nil
}

// Summary is one row of `manage list`'s output.
type Summary struct {
	ID    string
	State *State
}

// List returns every task under the service, in creation order, mirroring
// `manage.py list`.
func (c *Controller) List(ctx context.Context) ([]Summary, error) {
	kvs, err := c.client.ListByCreateOrder(ctx, c.client.TasksPrefix())
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(kvs))
	for _, kv := range kvs {
		var st State
		if err := json.Unmarshal(kv.Value, &st); err != nil {
			return nil, fmt.Errorf("task: decode %s: %w", kv.Key, err)
		}
		out = append(out, Summary{ID: c.client.TaskIDFromTaskKey(kv.Key), State: &st})
	}
	return out, nil
}

// Pause implements `manage pause <id>`. If the task is running, it writes
// interrupt/{id}=pause for the owning worker to observe at its next
// Alive() check. If the task is resuming (queued for pickup but not yet
// claimed by any worker), it value-CAS's the task straight back to paused
// and removes the now-stale queue marker and interrupt key, since no
// worker is actually watching it yet. Any other status is a conflict.
func (c *Controller) Pause(ctx context.Context, id string) error {
	st, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	switch st.Status {
	case StatusRunning:
		return c.client.Put(ctx, c.client.InterruptKey(id), "pause", nil)
	case StatusResuming:
		before, err := json.Marshal(st)
		if err != nil {
			return err
		}
		st.Status = StatusPaused
		after, err := json.Marshal(st)
		if err != nil {
			return err
		}

		txn := c.client.NewTxn()
		txn.CompareValue(c.client.TaskKey(id), string(before))
		txn.OnSuccessPut(c.client.TaskKey(id), string(after), nil)
		txn.OnSuccessDelete(c.client.QueueKey(id))
		txn.OnSuccessDelete(c.client.InterruptKey(id))

		ok, err := txn.Commit(ctx)
		if err != nil {
			return err
		}
		if !ok {
			actual := StatusResuming
			if cur, gerr := c.Get(ctx, id); gerr == nil {
				actual = cur.Status
			}
			return &StatusMismatchError{TaskID: id, Expected: StatusResuming, Actual: actual}
		}
		return nil
	default:
		return &StatusMismatchError{TaskID: id, Expected: StatusRunning, Actual: st.Status}
	}
}

// Resume implements `manage resume <id>`: a value-CAS paused -> resuming.
// The monitor's task-put watcher picks up the rewrite and enqueues it; an
// idle worker then claims it and calls Handle.Resume to reach running.
func (c *Controller) Resume(ctx context.Context, id string) error {
	return c.valueCAS(ctx, id, StatusPaused, StatusResuming, func(st *State) {})
}

// Retry implements `manage retry <id>`: a value-CAS error -> resuming,
// clearing the stored error field so a fresh attempt starts clean.
func (c *Controller) Retry(ctx context.Context, id string) error {
	return c.valueCAS(ctx, id, StatusError, StatusResuming, func(st *State) {
		st.Error = ""
	})
}

func (c *Controller) valueCAS(ctx context.Context, id string, from, to Status, mutate func(*State)) error {
	st, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if st.Status != from {
		return &StatusMismatchError{TaskID: id, Expected: from, Actual: st.Status}
	}

	before, err := json.Marshal(st)
	if err != nil {
		return err
	}

	st.Status = to
	mutate(st)

	after, err := json.Marshal(st)
	if err != nil {
		return err
	}

	txn := c.client.NewTxn()
	txn.CompareValue(c.client.TaskKey(id), string(before))
	txn.OnSuccessPut(c.client.TaskKey(id), string(after), nil)

	ok, err := txn.Commit(ctx)
	if err != nil {
		return err
	}
	if !ok {
		actual := from
		if cur, gerr := c.Get(ctx, id); gerr == nil {
			actual = cur.Status
		}
		return &StatusMismatchError{TaskID: id, Expected: from, Actual: actual}
	}
	return nil
}
