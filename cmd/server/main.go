package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	internalserver "github.com/iota-uz/org-hierarchy/internal/server"
	"github.com/iota-uz/org-hierarchy/modules/org"
	"github.com/iota-uz/org-hierarchy/modules/org/infrastructure/persistence"
	"github.com/iota-uz/org-hierarchy/modules/org/infrastructure/relay"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
	"github.com/iota-uz/org-hierarchy/pkg/application"
	"github.com/iota-uz/org-hierarchy/pkg/configuration"
	"github.com/iota-uz/org-hierarchy/pkg/eventbus"
	"github.com/iota-uz/org-hierarchy/pkg/logging"
	"github.com/iota-uz/org-hierarchy/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	pool, repo, closeStore := openStore(ctx, conf, logger)
	defer closeStore()

	var redisClient *redis.Client
	if conf.Hierarchy.CacheBackend == configuration.CacheRedis || conf.Hierarchy.Relay {
		redisClient = redis.NewClient(redisOptions(conf.RedisURL))
		defer func() { _ = redisClient.Close() }()
	}

	bus := eventbus.NewEventPublisher(logger)
	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: bus,
		Logger:   logger,
	})

	moduleOpts := &org.ModuleOptions{
		Repository:      repo,
		Cache:           newCache(conf, redisClient),
		MaxBatchSize:    conf.Hierarchy.MaxBatchSize,
		DefaultTenantID: conf.Hierarchy.DefaultTenantID(),
	}
	if conf.Hierarchy.Relay {
		busWithError, ok := bus.(eventbus.EventBusWithError)
		if !ok {
			log.Fatal("eventbus does not support PublishE; relay cannot start")
		}
		r := relay.New(redisClient, busWithError, relay.Options{Logger: logger})
		moduleOpts.Relay = r
		go func() {
			if err := r.Run(ctx); err != nil {
				logger.WithError(err).Error("relay stopped")
			}
		}()
	}
	if err := application.LoadModules(app, org.NewModule(moduleOpts)); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}

	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	serverInstance, err := internalserver.Default(&internalserver.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.Origin)
	if err := serverInstance.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// openStore connects the configured hierarchy store. The pool is nil for
// SQLite.
func openStore(ctx context.Context, conf *configuration.Configuration, logger *logrus.Logger) (*pgxpool.Pool, services.HierarchyRepository, func()) {
	switch conf.Store.Driver {
	case configuration.StoreSQLite:
		repo, err := persistence.OpenSQLite(ctx, conf.Store.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		logger.WithField("path", conf.Store.SQLitePath).Info("hierarchy store: sqlite")
		return nil, repo, func() { _ = repo.Close() }
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		if conf.Store.AutoMigrate {
			if err := persistence.MigratePostgres(connectCtx, pool); err != nil {
				log.Fatalf("failed to migrate: %v", err)
			}
		}
		logger.WithField("database", conf.Database.Name).Info("hierarchy store: postgres")
		return pool, persistence.NewPgHierarchyRepository(), pool.Close
	}
}

func redisOptions(raw string) *redis.Options {
	if opts, err := redis.ParseURL(raw); err == nil {
		return opts
	}
	return &redis.Options{Addr: raw}
}

func newCache(conf *configuration.Configuration, client *redis.Client) services.Cache {
	switch conf.Hierarchy.CacheBackend {
	case configuration.CacheRedis:
		return services.NewRedisCache(client, conf.Hierarchy.CacheTTL)
	case configuration.CacheOff:
		return services.NewNoopCache()
	default:
		return services.NewMemoryCache(conf.Hierarchy.CacheTTL)
	}
}
