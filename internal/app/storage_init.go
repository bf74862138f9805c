package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// runtimeDependencies: хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	cartRepo        domain.CartRepository
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	cartChecker    healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}
	var closers []func() error

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		deps.repo = memory.NewOrderRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory order mirror")
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres dsn is required for postgres storage driver")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithLogger(logger.WithField("component", "postgres-mirror")))
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if _, err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.repo = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.storageChecker = healthcheck.NewPingChecker("postgres", store.Ping)
		closers = append(closers, store.Close)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres order mirror")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		carts := redisstore.NewCartRepository(client, redisstore.WithTTL(cfg.CartTTL))
		if err := carts.Ping(ctx); err != nil {
			_ = client.Close()
			closeAll(closers, logger)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		deps.cartRepo = carts
		deps.cartChecker = healthcheck.NewPingChecker("redis", carts.Ping)
		closers = append(closers, client.Close)
		logger.WithField("addr", cfg.RedisAddr).Info("using redis cart store")
	} else {
		deps.cartRepo = memory.NewCartRepository()
	}

	deps.closeFn = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return deps, nil
}

func closeAll(closers []func() error, logger *log.Entry) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}
}
