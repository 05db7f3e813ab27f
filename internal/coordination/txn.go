package coordination

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/vectorq/taskqueue/internal/metrics"
)

// Txn is a thin builder around clientv3's compare-and-swap transaction,
// mirroring the shape of etcd3's `etcd.transaction(compare=, success=,
// failure=)` used throughout original_source/etcd_task.py.
type Txn struct {
	client  *Client
	compare []clientv3.Cmp
	success []clientv3.Op
	failure []clientv3.Op
}

// NewTxn starts a new transaction builder.
func (c *Client) NewTxn() *Txn {
	return &Txn{client: c}
}

// CompareVersion adds a precondition that key's mod version equals want.
// want == 0 means "key does not exist".
func (t *Txn) CompareVersion(key string, want int64) *Txn {
	t.compare = append(t.compare, clientv3.Compare(clientv3.Version(key), "=", want))
	return t
}

// CompareValue adds a precondition that key's stored value equals want,
// the building block for the controller's value-CAS transitions (pause,
// resume, retry) described in spec §4.2/§6.
func (t *Txn) CompareValue(key, want string) *Txn {
	t.compare = append(t.compare, clientv3.Compare(clientv3.Value(key), "=", want))
	return t
}

// CompareLease adds a precondition that key is currently bound to lease.
// A worker's mutating transaction uses this against its own claim key so
// that if the lease expired (and a second worker already claimed the task)
// between the Alive() check and this commit, the whole transaction — task
// state write included — fails instead of silently clobbering the new
// owner. This is what makes invariant 2 (running implies a live claim)
// hold even across a lease expiring mid-transaction.
func (t *Txn) CompareLease(key string, lease *Lease) *Txn {
	t.compare = append(t.compare, clientv3.Compare(clientv3.LeaseValue(key), "=", int64(lease.ID())))
	return t
}

// OnSuccessPut queues a put for when every compare passes. Pass a lease to
// bind the key's lifetime to it, or nil for an unleased key.
func (t *Txn) OnSuccessPut(key, value string, lease *Lease) *Txn {
	opts := []clientv3.OpOption{}
	if lease != nil {
		opts = append(opts, clientv3.WithLease(lease.ID()))
	}
	t.success = append(t.success, clientv3.OpPut(key, value, opts...))
	return t
}

// OnSuccessDelete queues a delete for when every compare passes.
func (t *Txn) OnSuccessDelete(key string) *Txn {
	t.success = append(t.success, clientv3.OpDelete(key))
	return t
}

// OnFailureDelete queues a delete for when any compare fails. Used the way
// claim_task uses it: clean up a stray queue marker even when the claim
// itself was lost to a competing worker.
func (t *Txn) OnFailureDelete(key string) *Txn {
	t.failure = append(t.failure, clientv3.OpDelete(key))
	return t
}

// Commit executes the transaction and reports whether the compare clause
// succeeded.
func (t *Txn) Commit(ctx context.Context) (bool, error) {
	start := time.Now()
	resp, err := t.client.etcd.Txn(ctx).
		If(t.compare...).
		Then(t.success...).
		Else(t.failure...).
		Commit()
	metrics.RecordCoordinationOperation("txn", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordCoordinationError("txn")
		return false, fmt.Errorf("coordination: commit transaction: %w", err)
	}
	return resp.Succeeded, nil
}

// Put writes a single unconditional key, leased if lease is non-nil.
func (c *Client) Put(ctx context.Context, key, value string, lease *Lease) error {
	opts := []clientv3.OpOption{}
	if lease != nil {
		opts = append(opts, clientv3.WithLease(lease.ID()))
	}
	start := time.Now()
	_, err := c.etcd.Put(ctx, key, value, opts...)
	metrics.RecordCoordinationOperation("put", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordCoordinationError("put")
		return fmt.Errorf("coordination: put %s: %w", key, err)
	}
	return nil
}

// Get fetches a single key's value. Returns ok=false if absent.
func (c *Client) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	start := time.Now()
	resp, err := c.etcd.Get(ctx, key)
	metrics.RecordCoordinationOperation("get", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordCoordinationError("get")
		return "", false, fmt.Errorf("coordination: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// Delete removes a single key unconditionally.
func (c *Client) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := c.etcd.Delete(ctx, key)
	metrics.RecordCoordinationOperation("delete", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordCoordinationError("delete")
		return fmt.Errorf("coordination: delete %s: %w", key, err)
	}
	return nil
}

// KV is a single key/value pair as returned by prefix listings.
type KV struct {
	Key   string
	Value []byte
}

// ListByCreateOrder returns all keys under prefix, sorted ascending by
// creation revision. This matches `etcd.get_prefix(prefix,
// sort_order='ascend', sort_target='create')` in etcd_task.py's
// next_task(), which is what lets the queue behave FIFO.
func (c *Client) ListByCreateOrder(ctx context.Context, prefix string) ([]KV, error) {
	start := time.Now()
	resp, err := c.etcd.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend),
	)
	metrics.RecordCoordinationOperation("list", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordCoordinationError("list")
		return nil, fmt.Errorf("coordination: list %s: %w", prefix, err)
	}

	out := make([]KV, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KV{Key: string(kv.Key), Value: kv.Value})
	}
	return out, nil
}
