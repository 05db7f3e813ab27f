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
	"github.com/vectorq/taskqueue/internal/monitor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting monitor...")

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

	m := monitor.New(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- coordination.Retry(ctx, coordination.DefaultBackoffPolicy(), 0, func() error {
			return m.Run(ctx)
		})
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down monitor...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Monitor exited with error")
		}
	}

	log.Info().Msg("Monitor stopped")
}
