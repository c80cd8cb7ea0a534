package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"imagevault/internal/app"
	"imagevault/internal/config"
	"imagevault/internal/handlers"
	"imagevault/internal/jobs"
	"imagevault/internal/log"
	"imagevault/internal/server"
	"imagevault/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise components")
	}

	auth := service.NewAuthService(components.Users, cfg, logger)
	uploads := service.NewUploadService(
		components.Images,
		components.Directory,
		components.Stores.Originals,
		components.Coordinator,
		components.Producer,
		cfg,
		logger,
	)

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Dependencies{
		Auth:    auth,
		Uploads: uploads,
		Access:  components.Coordinator,
		Images:  components.Images,
		Tiers:   components.Tiers,
		Checks: map[string]handlers.Checker{
			"database": components.DB.Ping,
			"cache": func(ctx context.Context) error {
				return components.Redis.Ping(ctx).Err()
			},
		},
		MaxUpload: (cfg.Upload.MaxSizeMB + 1) << 20,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(components.Producer, cfg.Schedule.Sweep, cfg.Schedule.SweepWindow, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, components)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, components *app.Components) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()
	components.Close(logger)

	logger.Info().Msg("server exited cleanly")
}
