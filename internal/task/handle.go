package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/metrics"
)

// Handle is a claim-bound reference to a single task's coordination state,
// mirroring the Task class in original_source/etcd_task.py. Every Handle
// returned by the queue package (Claim/NextTask) owns a lease and can
// drive the task through the worker-side half of its lifecycle.
type Handle struct {
	client   *coordination.Client
	id       string
	lease    *coordination.Lease
	identity string

	state *State

	interrupting bool
}

// ID returns the task id this handle refers to.
func (h *Handle) ID() string {
	return h.id
}

// Load reads a task's current JSON state, refreshing the lease first. id
// must already be claimed by identity with lease — Load does not attempt
// to acquire anything itself. Mirrors Task.__init__ / Task._task_state.
func Load(ctx context.Context, client *coordination.Client, id string, lease *coordination.Lease, identity string) (*Handle, error) {
	h := &Handle{client: client, id: id, lease: lease, identity: identity, interrupting: true}

	if lease != nil {
		if err := h.Alive(ctx); err != nil {
			return nil, err
		}
	}
	h.interrupting = false

	if err := h.reload(ctx); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *Handle) reload(ctx context.Context) error {
	raw, ok, err := h.client.Get(ctx, h.client.TaskKey(h.id))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task: %s: %w", h.id, ErrTaskNotFound)
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return fmt.Errorf("task: decode %s: %w", h.id, err)
	}
	h.state = &st

	return nil
}

// Status returns the task's current status.
func (h *Handle) Status() Status {
	return h.state.Status
}

// Init returns the task's init parameters.
func (h *Handle) Init() *Init {
	return h.state.Init
}

// Progress returns the task's current progress, or nil if never set.
func (h *Handle) Progress() *Progress {
	return h.state.Progress
}

// Error returns the stored error string, if any.
func (h *Handle) Error() string {
	return h.state.Error
}

// Alive refreshes the claim lease and checks for a pending interrupt
// request. Must be called at every mutating operation and at batch chunk
// boundaries, mirroring Task.alive() in etcd_task.py.
//
// Returns *TimeoutError if the lease has expired, *InterruptedError if an
// interrupt was pending and has now been applied (the task's status has
// already been rewritten to paused/canceled by this call), or a non-nil
// plain error for any other coordination failure. A nil return means the
// task is still alive and uninterrupted.
func (h *Handle) Alive(ctx context.Context) error {
	if h.lease == nil {
		return nil
	}

	ttl, err := h.lease.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("task: %s: %w", h.id, err)
	}
	metrics.RecordLeaseRenewal(ttl != 0)
	if ttl == 0 {
		return &TimeoutError{TaskID: h.id}
	}

	reason, ok, err := h.client.Get(ctx, h.client.InterruptKey(h.id))
	if err != nil {
		return fmt.Errorf("task: %s: %w", h.id, err)
	}
	if !ok || reason == "" {
		return nil
	}

	if err := h.applyInterrupt(ctx, reason); err != nil {
		return err
	}

	_ = h.lease.Revoke(ctx)

	return &InterruptedError{TaskID: h.id, Reason: reason}
}

// applyInterrupt transitions the task to the status matching reason and
// clears the interrupt key, mirroring Task.interrupt().
func (h *Handle) applyInterrupt(ctx context.Context, reason string) error {
	var target Status
	switch reason {
	case "cancel":
		target = StatusCanceled
	case "pause":
		target = StatusPaused
	default:
		return fmt.Errorf("task: %s: unknown interrupt reason %q", h.id, reason)
	}

	h.interrupting = true
	defer func() { h.interrupting = false }()

	if h.state.Status != StatusRunning {
		return &StatusMismatchError{TaskID: h.id, Expected: StatusRunning, Actual: h.state.Status}
	}
	h.state.Status = target

	if err := h.persist(ctx, func(txn *coordination.Txn) {
		txn.OnSuccessDelete(h.client.InterruptKey(h.id))
	}); err != nil {
		return err
	}
	if target == StatusCanceled {
		metrics.RecordTaskFinished(string(StatusCanceled))
	}
	return nil
}

// Start transitions pending -> running. Mirrors Task.start().
func (h *Handle) Start(ctx context.Context) error {
	return h.transition(ctx, StatusPending, StatusRunning)
}

// Resume transitions resuming -> running, driven by the worker that
// reacquired the claim (whether the task was controller-paused or
// orphan-recovered, both land on resuming first — see spec §4.1).
// Mirrors Task.resume().
func (h *Handle) Resume(ctx context.Context) error {
	return h.transition(ctx, StatusResuming, StatusRunning)
}

func (h *Handle) transition(ctx context.Context, from, to Status) error {
	if h.state.Status != from {
		return &StatusMismatchError{TaskID: h.id, Expected: from, Actual: h.state.Status}
	}
	h.state.Status = to
	return h.persist(ctx)
}

// SetProgress records progress on a running task. Mirrors
// Task.set_progress().
func (h *Handle) SetProgress(ctx context.Context, p Progress) error {
	if h.state.Status != StatusRunning {
		return &StatusMismatchError{TaskID: h.id, Expected: StatusRunning, Actual: h.state.Status}
	}
	h.state.SetProgress(p)
	return h.persist(ctx)
}

// Finish transitions running -> complete, stores the final result, and
// revokes the claim lease. Mirrors Task.finish().
func (h *Handle) Finish(ctx context.Context, count int64) error {
	if h.state.Status != StatusRunning {
		return &StatusMismatchError{TaskID: h.id, Expected: StatusRunning, Actual: h.state.Status}
	}
	h.state.SetResult(count)
	h.state.Status = StatusComplete

	if err := h.persist(ctx); err != nil {
		return err
	}
	metrics.RecordTaskFinished(string(StatusComplete))
	return h.lease.Revoke(ctx)
}

// FinishError transitions running -> error, stores the error message, and
// revokes the claim lease. Mirrors Task.finish_error().
func (h *Handle) FinishError(ctx context.Context, errMsg string) error {
	if h.state.Status != StatusRunning {
		return &StatusMismatchError{TaskID: h.id, Expected: StatusRunning, Actual: h.state.Status}
	}
	h.state.Error = errMsg
	h.state.Status = StatusError

	if err := h.persist(ctx); err != nil {
		return err
	}
	metrics.RecordTaskFinished(string(StatusError))
	return h.lease.Revoke(ctx)
}

// persist writes the current in-memory state back to etcd in a single
// transaction that also re-puts the claim key, gated on the claim still
// being bound to this handle's lease, mirroring Task._update_state() per
// the spec's resolved Open Question (§9): the compare clause, not just the
// re-put, is what makes ownership loss abort the whole write. configure
// lets callers append to the success branch (applyInterrupt uses it to
// delete the interrupt key atomically with the status write).
func (h *Handle) persist(ctx context.Context, configure ...func(*coordination.Txn)) error {
	if !h.interrupting {
		if err := h.Alive(ctx); err != nil {
			return err
		}
	}

	data, err := json.Marshal(h.state)
	if err != nil {
		return fmt.Errorf("task: marshal %s: %w", h.id, err)
	}

	txn := h.client.NewTxn()
	txn.CompareLease(h.client.ClaimKey(h.id), h.lease)
	txn.OnSuccessPut(h.client.ClaimKey(h.id), h.identity, h.lease)
	txn.OnSuccessPut(h.client.TaskKey(h.id), string(data), nil)
	for _, c := range configure {
		c(txn)
	}

	ok, err := txn.Commit(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &TimeoutError{TaskID: h.id}
	}
	return nil
}
