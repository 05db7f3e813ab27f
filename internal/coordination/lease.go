package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
)

// Lease wraps an etcd lease, providing the refresh-or-report-expired check
// that task.Handle.Alive needs on every mutating call.
type Lease struct {
	client *Client
	id     clientv3.LeaseID
	ttl    int64
}

// Grant creates a new lease with the given TTL in seconds.
func (c *Client) Grant(ctx context.Context, ttlSeconds int64) (*Lease, error) {
	resp, err := c.etcd.Grant(ctx, ttlSeconds)
	if err != nil {
		return nil, fmt.Errorf("coordination: grant lease: %w", err)
	}
	return &Lease{client: c, id: resp.ID, ttl: ttlSeconds}, nil
}

// ID returns the raw lease id, for attaching to Put operations.
func (l *Lease) ID() clientv3.LeaseID {
	return l.id
}

// Refresh sends a single keep-alive heartbeat and reports the TTL etcd
// handed back. A TTL of 0 means the lease is gone — already expired or
// revoked — mirroring etcd3's lease.refresh()[0].TTL check in
// original_source/etcd_task.py's Task.alive().
func (l *Lease) Refresh(ctx context.Context) (int64, error) {
	resp, err := l.client.etcd.KeepAliveOnce(ctx, l.id)
	if err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("coordination: refresh lease: %w", err)
	}
	return resp.TTL, nil
}

// Revoke releases the lease immediately, deleting every key attached to it.
func (l *Lease) Revoke(ctx context.Context) error {
	if _, err := l.client.etcd.Revoke(ctx, l.id); err != nil {
		return fmt.Errorf("coordination: revoke lease: %w", err)
	}
	return nil
}

// KeepAliveBackground starts an automatic keep-alive loop. Callers that
// want etcd to refresh the lease on its own schedule (ttl/3) rather than
// synchronously at alive() checkpoints can use this; the task queue
// protocol here relies on the explicit Refresh() checkpoint instead, since
// liveness must be observable at well-defined points in the worker's
// control flow, not on a background timer that can race a crash.
func (l *Lease) KeepAliveBackground(ctx context.Context) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	return l.client.etcd.KeepAlive(ctx, l.id)
}

// TTLRemaining is a convenience helper for logging/metrics.
func (l *Lease) TTLRemaining() time.Duration {
	return time.Duration(l.ttl) * time.Second
}
