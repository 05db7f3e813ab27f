package worker

import (
	"context"
	"sync"
	"time"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/logger"
	"github.com/vectorq/taskqueue/internal/queue"
)

// GroupConfig configures a worker process's pool of Runners. Adapted from
// pool.go's Pool/config.WorkerConfig pairing, trimmed to what a
// single-task-at-a-time Runner actually needs: no per-task timeout or retry
// policy (those live in task/controller.go and Handle now), no Redis DLQ.
type GroupConfig struct {
	Identity        string
	Concurrency     int
	IdentityTTL     time.Duration
	ShutdownTimeout time.Duration
}

// Group runs Concurrency independent Runner loops against the same queue,
// the way Pool.Start spawned Concurrency worker goroutines against the same
// RedisQueue — adapted to this protocol's claim semantics, where each
// Runner fully owns one task for its entire lifetime instead of dequeuing
// short-lived handler invocations.
type Group struct {
	cfg   GroupConfig
	queue *queue.Queue
	wcfg  Config

	wg sync.WaitGroup
}

// NewGroup builds a Group. wcfg is shared by every Runner (root dir, chunk
// size, backend); cfg controls concurrency and identity registration.
func NewGroup(q *queue.Queue, wcfg Config, cfg GroupConfig) *Group {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Group{cfg: cfg, queue: q, wcfg: wcfg}
}

// Run registers the worker's identity, starts cfg.Concurrency Runner
// goroutines, and blocks until ctx is canceled, then waits (bounded by
// cfg.ShutdownTimeout) for in-flight tasks to reach their next chunk
// boundary and exit cleanly. Mirrors Pool.Start+Pool.Stop collapsed into
// one call, since this package no longer exposes an admin pause/resume
// surface at the pool level — pause/resume is per-task now (spec §4.2),
// driven by the controller, not the worker process.
func (g *Group) Run(ctx context.Context, client *coordination.Client) error {
	cleanup, err := registerIdentity(ctx, client, g.cfg.Identity, g.cfg.Concurrency, g.cfg.IdentityTTL)
	if err != nil {
		return err
	}
	defer cleanup()

	for i := 0; i < g.cfg.Concurrency; i++ {
		runner := NewRunner(g.queue, g.wcfg)
		g.wg.Add(1)
		go func(n int) {
			defer g.wg.Done()
			log := logger.WithWorker(g.cfg.Identity)
			log.Info().Int("runner", n).Msg("runner started")
			if err := runner.Run(ctx); err != nil {
				log.Error().Err(err).Int("runner", n).Msg("runner exited with error")
			}
		}(i)
	}

	<-ctx.Done()
	logger.Info().Str("identity", g.cfg.Identity).Msg("worker group shutting down")

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Str("identity", g.cfg.Identity).Msg("worker group stopped gracefully")
	case <-time.After(g.cfg.ShutdownTimeout):
		logger.Warn().Str("identity", g.cfg.Identity).Msg("worker group shutdown timed out, exiting anyway")
	}

	return nil
}
