package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"imagevault/internal/cache"
	"imagevault/internal/config"
	"imagevault/internal/database"
	"imagevault/internal/log"
	"imagevault/internal/models"
	"imagevault/internal/repository"
	"imagevault/internal/service"
)

type runtime struct {
	db           *pgxpool.Pool
	tiers        *repository.TierRepository
	provisioning *service.ProvisioningService
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := log.New(cfg.Environment, cfg.Logging.Level)

	cliApp := &cli.App{
		Name:  "imagevault-admin",
		Usage: "provision users, thumbnail sizes, tiers and subscriptions",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply the database schema",
				Action: func(c *cli.Context) error {
					return withRuntime(c.Context, cfg, logger, func(rt *runtime) error {
						if err := database.Migrate(c.Context, rt.db); err != nil {
							return err
						}
						logger.Info().Msg("schema applied")
						return nil
					})
				},
			},
			{
				Name:  "user",
				Usage: "manage users",
				Subcommands: []*cli.Command{
					{
						Name:  "create",
						Usage: "create a user",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "username", Required: true},
							&cli.StringFlag{Name: "email"},
							&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"IMAGEVAULT_NEW_USER_PASSWORD"}},
							&cli.BoolFlag{Name: "admin", Usage: "grant the admin role"},
						},
						Action: func(c *cli.Context) error {
							return withRuntime(c.Context, cfg, logger, func(rt *runtime) error {
								user, err := rt.provisioning.CreateUser(c.Context, service.CreateUserInput{
									Username: c.String("username"),
									Email:    c.String("email"),
									Password: c.String("password"),
									Admin:    c.Bool("admin"),
								})
								if err != nil {
									return err
								}
								fmt.Fprintf(c.App.Writer, "created user %s (%s)\n", user.Username, user.ID)
								return nil
							})
						},
					},
					statusCommand("suspend", "block a user from signing in", models.UserStatusSuspended, cfg, logger),
					statusCommand("activate", "restore a suspended user", models.UserStatusActive, cfg, logger),
				},
			},
			{
				Name:  "size",
				Usage: "manage thumbnail sizes",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "register a thumbnail height in pixels",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "height", Required: true},
						},
						Action: func(c *cli.Context) error {
							return withRuntime(c.Context, cfg, logger, func(rt *runtime) error {
								return rt.provisioning.AddSize(c.Context, c.Int("height"))
							})
						},
					},
					{
						Name:  "list",
						Usage: "list registered thumbnail heights",
						Action: func(c *cli.Context) error {
							return withRuntime(c.Context, cfg, logger, func(rt *runtime) error {
								sizes, err := rt.provisioning.ListSizes(c.Context)
								if err != nil {
									return err
								}
								fmt.Fprintln(c.App.Writer, joinInts(sizes))
								return nil
							})
						},
					},
				},
			},
			{
				Name:  "tier",
				Usage: "manage account tiers",
				Subcommands: []*cli.Command{
					{
						Name:  "create",
						Usage: "create a tier",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Required: true},
							&cli.IntSliceFlag{Name: "sizes", Usage: "permitted thumbnail heights"},
							&cli.BoolFlag{Name: "original", Usage: "allow downloading originals"},
							&cli.BoolFlag{Name: "expiring-links", Usage: "allow temporary links"},
						},
						Action: func(c *cli.Context) error {
							return withRuntime(c.Context, cfg, logger, func(rt *runtime) error {
								tier, err := rt.provisioning.CreateTier(c.Context, models.AccountTier{
									Name:                c.String("name"),
									ThumbnailSizes:      c.IntSlice("sizes"),
									AllowsOriginal:      c.Bool("original"),
									AllowsExpiringLinks: c.Bool("expiring-links"),
								})
								if err != nil {
									return err
								}
								fmt.Fprintf(c.App.Writer, "created tier %s (%d)\n", tier.Name, tier.ID)
								return nil
							})
						},
					},
					{
						Name:  "list",
						Usage: "list tiers",
						Action: func(c *cli.Context) error {
							return withRuntime(c.Context, cfg, logger, func(rt *runtime) error {
								tiers, err := rt.tiers.List(c.Context)
								if err != nil {
									return err
								}
								for _, t := range tiers {
									fmt.Fprintf(c.App.Writer, "%d\t%s\tsizes=%s\toriginal=%t\tlinks=%t\n",
										t.ID, t.Name, joinInts(t.ThumbnailSizes), t.AllowsOriginal, t.AllowsExpiringLinks)
								}
								return nil
							})
						},
					},
				},
			},
			{
				Name:  "subscribe",
				Usage: "bind a user to a tier",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "tier", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withRuntime(c.Context, cfg, logger, func(rt *runtime) error {
						return rt.provisioning.Subscribe(c.Context, c.String("user"), c.String("tier"))
					})
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func statusCommand(name, usage string, status models.UserStatus, cfg *config.AppConfig, logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withRuntime(c.Context, cfg, logger, func(rt *runtime) error {
				if err := rt.provisioning.SetUserStatus(c.Context, c.String("username"), status); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s is now %s\n", c.String("username"), status)
				return nil
			})
		},
	}
}

// withRuntime opens the database, and redis when reachable, for one command.
func withRuntime(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger, fn func(rt *runtime) error) error {
	db, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	users := repository.NewUserRepository(db)
	tiers := repository.NewTierRepository(db)

	var invalidator service.TierInvalidator
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, cached tiers expire on their own")
	} else {
		defer redisClient.Close()
		invalidator = cache.NewCachedDirectory(tiers, redisClient, cfg.Thumbnails.TierCacheTTL, logger)
	}

	return fn(&runtime{
		db:           db,
		tiers:        tiers,
		provisioning: service.NewProvisioningService(users, tiers, invalidator, logger),
	})
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ",")
}
