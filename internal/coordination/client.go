// Package coordination wraps the etcd client in the keyspace and
// transaction shapes the task queue protocol is built on: a service gets
// one flat prefix, tasks/queue/claims/interrupt live under it, and guarded
// mutations go through a single compare-and-swap transaction (Txn); Put and
// Delete are unconditional writes.
package coordination

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/vectorq/taskqueue/internal/logger"
)

// Config configures the etcd connection and the logical service namespace.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
	Service     string
}

// Client wraps an etcd clientv3.Client bound to a single service's keyspace.
type Client struct {
	etcd    *clientv3.Client
	service string
	prefix  string
}

// New dials etcd and returns a Client scoped to cfg.Service.
func New(cfg Config) (*Client, error) {
	if cfg.Service == "" {
		return nil, fmt.Errorf("coordination: service name is required")
	}

	etcdCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	}

	raw, err := clientv3.New(etcdCfg)
	if err != nil {
		return nil, fmt.Errorf("coordination: dial etcd: %w", err)
	}

	c := &Client{
		etcd:    raw,
		service: cfg.Service,
		prefix:  fmt.Sprintf("/services/%s/", cfg.Service),
	}

	logger.Info().
		Strs("endpoints", cfg.Endpoints).
		Str("service", cfg.Service).
		Msg("coordination client connected")

	return c, nil
}

// Close releases the underlying etcd connection.
func (c *Client) Close() error {
	return c.etcd.Close()
}

// Raw exposes the underlying etcd client for operations this package
// doesn't wrap (used sparingly, e.g. by the monitor's dual watch setup).
func (c *Client) Raw() *clientv3.Client {
	return c.etcd
}

// Prefix returns the service's root keyspace prefix, "/services/{name}/".
func (c *Client) Prefix() string {
	return c.prefix
}

// TasksPrefix returns the prefix under which task state blobs live.
func (c *Client) TasksPrefix() string {
	return c.prefix + "tasks/"
}

// QueuePrefix returns the prefix under which queue markers live.
func (c *Client) QueuePrefix() string {
	return c.prefix + "queue/"
}

// ClaimsPrefix returns the prefix under which claim keys live.
func (c *Client) ClaimsPrefix() string {
	return c.prefix + "claims/"
}

// InterruptPrefix returns the prefix under which interrupt markers live.
func (c *Client) InterruptPrefix() string {
	return c.prefix + "interrupt/"
}

// WorkersPrefix returns the prefix under which worker registration keys
// live. This keyspace is not part of the claim/lease protocol itself; it
// exists purely so the status server can list active workers.
func (c *Client) WorkersPrefix() string {
	return c.prefix + "workers/"
}

func (c *Client) TaskKey(id string) string     { return c.TasksPrefix() + id }
func (c *Client) QueueKey(id string) string     { return c.QueuePrefix() + id }
func (c *Client) ClaimKey(id string) string     { return c.ClaimsPrefix() + id }
func (c *Client) InterruptKey(id string) string { return c.InterruptPrefix() + id }
func (c *Client) WorkerKey(id string) string    { return c.WorkersPrefix() + id }

// WorkerIDFromWorkerKey strips the workers prefix from a raw key.
func (c *Client) WorkerIDFromWorkerKey(key string) string {
	return key[len(c.WorkersPrefix()):]
}

// TaskIDFromQueueKey strips the queue prefix from a raw key, recovering the
// task id. Mirrors TaskQueue.queue_key_to_task_id in etcd_task.py.
func (c *Client) TaskIDFromQueueKey(key string) string {
	return key[len(c.QueuePrefix()):]
}

// TaskIDFromTaskKey strips the tasks prefix from a raw key.
func (c *Client) TaskIDFromTaskKey(key string) string {
	return key[len(c.TasksPrefix()):]
}

// TaskIDFromClaimKey strips the claims prefix from a raw key.
func (c *Client) TaskIDFromClaimKey(key string) string {
	return key[len(c.ClaimsPrefix()):]
}

// Ping verifies connectivity by issuing a bounded Get against the service
// prefix. Used by health checks; carries no side effects.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.etcd.Get(ctx, c.prefix, clientv3.WithCountOnly(), clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("coordination: ping: %w", err)
	}
	return nil
}
