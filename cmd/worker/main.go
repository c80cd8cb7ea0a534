package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"imagevault/internal/app"
	"imagevault/internal/config"
	"imagevault/internal/log"
	"imagevault/internal/queue"
	"imagevault/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise components")
	}
	defer components.Close(logger)

	processor := tasks.NewProcessor(
		components.Images,
		components.Directory,
		components.Resolver,
		cfg.Queues.Concurrency,
		logger,
	)
	consumer := queue.NewConsumer(
		components.Redis,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Queues.ClaimInterval,
		cfg.Queues.MaxDeliveries,
		logger,
		processor,
	)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("create consumer group failed")
	}

	logger.Info().Str("stream", cfg.Redis.Stream).Str("group", cfg.Redis.Group).Msg("worker started")

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited")
}
