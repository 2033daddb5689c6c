package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"autocare/internal/cache"
	"autocare/internal/config"
	"autocare/internal/database"
	"autocare/internal/log"
	"autocare/internal/queue"
	"autocare/internal/repository"
	"autocare/internal/storage"
	"autocare/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	processor := tasks.NewProcessor(
		repository.NewDiagnosticRepository(dbPool),
		repository.NewSessionRepository(dbPool),
		objectStore,
		cfg.SignatureSecret,
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Stream.Name,
		cfg.Stream.Group,
		cfg.Stream.Consumer,
		cfg.Stream.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("consumer did not stop in time")
		}
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		}
	}
}
