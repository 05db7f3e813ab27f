package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vectorq/taskqueue/internal/config"
	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/logger"
	"github.com/vectorq/taskqueue/internal/queue"
	"github.com/vectorq/taskqueue/internal/vectorize"
	"github.com/vectorq/taskqueue/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting worker...")

	identity := cfg.Worker.Identity
	if identity == "" {
		host, err := os.Hostname()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to resolve worker identity")
		}
		identity = host
	}

	client, err := coordination.New(coordination.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
		Username:    cfg.Etcd.Username,
		Password:    cfg.Etcd.Password,
		Service:     cfg.Service.Name,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to etcd")
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close etcd client")
		}
	}()

	q := queue.New(client, identity, cfg.Queue.ClaimTTL)

	group := worker.NewGroup(q, worker.Config{
		RootDir:   cfg.Worker.Directory,
		ChunkSize: cfg.Worker.ChunkSize,
		Identity:  identity,
		Backend:   vectorize.NewHashBackend(),
	}, worker.GroupConfig{
		Identity:        identity,
		Concurrency:     cfg.Worker.Concurrency,
		IdentityTTL:     cfg.Worker.IdentityTTL,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- group.Run(ctx, client)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down worker...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Worker group exited with error")
		}
	}

	log.Info().Msg("Worker stopped")
}
