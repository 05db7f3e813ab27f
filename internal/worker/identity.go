package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/logger"
)

// Info is the JSON document a worker process publishes at
// workers/{identity}, adapted from heartbeat.go's WorkerInfo — same idea
// (liveness + a little observability metadata), rebased onto an etcd lease
// instead of a Redis SETEX-and-reset loop, so the key vanishes on its own
// if the process dies without deregistering.
type Info struct {
	Identity    string    `json:"identity"`
	StartedAt   time.Time `json:"started_at"`
	Concurrency int       `json:"concurrency"`
	PID         int       `json:"pid"`
}

// ListActive returns every worker currently registered under workers/,
// for the admin surface's GET /admin/workers. A worker with an expired
// identity lease simply has no key to list — no separate liveness check
// is needed.
func ListActive(ctx context.Context, client *coordination.Client) ([]Info, error) {
	kvs, err := client.ListByCreateOrder(ctx, client.WorkersPrefix())
	if err != nil {
		return nil, fmt.Errorf("worker: list active: %w", err)
	}

	out := make([]Info, 0, len(kvs))
	for _, kv := range kvs {
		var info Info
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			logger.Error().Err(err).Str("key", kv.Key).Msg("worker: decode identity during list")
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// registerIdentity grants a lease, publishes workers/{identity}, and keeps
// the lease alive in the background for as long as ctx lives — adapted
// from Heartbeat.Start/heartbeatLoop, replacing the periodic re-Set with a
// leased key plus etcd's own keep-alive stream. Returns a cleanup func that
// revokes the lease (and so deletes the key) on shutdown.
func registerIdentity(ctx context.Context, client *coordination.Client, identity string, concurrency int, ttl time.Duration) (func(), error) {
	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}

	lease, err := client.Grant(ctx, ttlSeconds)
	if err != nil {
		return nil, fmt.Errorf("worker: grant identity lease: %w", err)
	}

	info := Info{
		Identity:    identity,
		StartedAt:   time.Now().UTC(),
		Concurrency: concurrency,
		PID:         os.Getpid(),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal identity: %w", err)
	}

	if err := client.Put(ctx, client.WorkerKey(identity), string(data), lease); err != nil {
		return nil, fmt.Errorf("worker: publish identity: %w", err)
	}

	keepAliveCh, err := lease.KeepAliveBackground(ctx)
	if err != nil {
		return nil, fmt.Errorf("worker: start identity keep-alive: %w", err)
	}

	go func() {
		for range keepAliveCh {
			// Drain; etcd's client library handles the resend cadence. A
			// closed channel means ctx was canceled or the lease expired,
			// either of which ends this goroutine.
		}
	}()

	logger.Info().Str("identity", identity).Msg("worker identity registered")

	return func() {
		revokeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Revoke(revokeCtx); err != nil {
			logger.Warn().Err(err).Str("identity", identity).Msg("worker: failed to revoke identity lease on shutdown")
		}
	}, nil
}
