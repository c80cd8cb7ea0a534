// Package app assembles the shared components used by the api, worker and
// admin binaries.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imagevault/internal/access"
	"imagevault/internal/cache"
	"imagevault/internal/config"
	"imagevault/internal/database"
	"imagevault/internal/media/thumbnail"
	"imagevault/internal/queue"
	"imagevault/internal/repository"
	"imagevault/internal/storage"
)

type Components struct {
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Stores      storage.Stores
	Images      *repository.ImageRepository
	Users       *repository.UserRepository
	Tiers       *repository.TierRepository
	Directory   *cache.CachedDirectory
	Resolver    *thumbnail.Resolver
	Links       *access.TempLinkManager
	Coordinator *access.Coordinator
	Producer    *queue.Producer
}

func Build(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*Components, error) {
	db, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	stores, err := storage.NewStores(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	images := repository.NewImageRepository(db)
	tiers := repository.NewTierRepository(db)
	directory := cache.NewCachedDirectory(tiers, redisClient, cfg.Thumbnails.TierCacheTTL, log)

	resolver := thumbnail.NewResolver(stores.Originals, stores.Variants, thumbnail.Options{
		LockWait:      cfg.Thumbnails.LockWait,
		RenderTimeout: cfg.Thumbnails.RenderTimeout,
		Locker:        thumbnail.NewRedisLocker(redisClient, cfg.Thumbnails.LockTTL),
	}, log)

	links := access.NewTempLinkManager(images, access.TempLinkOptions{
		TokenLength: cfg.Links.TokenLength,
		MaxAttempts: cfg.Links.MaxAttempts,
	})

	return &Components{
		DB:          db,
		Redis:       redisClient,
		Stores:      stores,
		Images:      images,
		Users:       repository.NewUserRepository(db),
		Tiers:       tiers,
		Directory:   directory,
		Resolver:    resolver,
		Links:       links,
		Coordinator: access.NewCoordinator(images, directory, stores.Originals, resolver, links, log),
		Producer:    queue.NewProducer(redisClient, cfg.Redis.Stream),
	}, nil
}

func (c *Components) Close(log zerolog.Logger) {
	c.DB.Close()
	if err := c.Redis.Close(); err != nil {
		log.Error().Err(err).Msg("redis close error")
	}
}
