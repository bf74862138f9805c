package app

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	defer func() { assert.NoError(t, deps.closeFn()) }()

	assert.NotNil(t, deps.cartRepo)
	assert.NotNil(t, deps.repo)
	assert.NotNil(t, deps.outboxRepo)
	assert.NotNil(t, deps.timelineRepo)
	assert.NotNil(t, deps.idempotencyRepo)
	assert.Nil(t, deps.storageChecker)
	assert.Nil(t, deps.cartChecker)
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	require.Error(t, err)
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitRuntimeDependencies_RedisCarts(t *testing.T) {
	srv := miniredis.RunT(t)

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		RedisAddr:     srv.Addr(),
		CartTTL:       DefaultConfig().CartTTL,
	}, log.WithField("test", "redis-carts"))
	require.NoError(t, err)
	defer func() { assert.NoError(t, deps.closeFn()) }()

	assert.IsType(t, &redisstore.CartRepository{}, deps.cartRepo)
	require.NotNil(t, deps.cartChecker)
	assert.Equal(t, healthcheck.StatusHealthy, deps.cartChecker.Check(context.Background()).Status)

	srv.Close()
	assert.Equal(t, healthcheck.StatusUnhealthy, deps.cartChecker.Check(context.Background()).Status)
}

func TestInitRuntimeDependencies_RedisUnavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		RedisAddr:     addr,
	}, log.WithField("test", "redis-down"))
	require.ErrorContains(t, err, "ping redis")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	require.NotNil(t, deps.storageChecker)
	assert.Equal(t, healthcheck.StatusHealthy, deps.storageChecker.Check(context.Background()).Status)
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN"))
}
