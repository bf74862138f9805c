package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrator_UpDownRoundTrip(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	assertStatus := func(version int64, applied int, pending ...string) {
		t.Helper()
		status, err := store.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, version, status.Version)
		assert.Equal(t, applied, status.Applied)
		assert.Equal(t, pending, status.Pending)
	}

	_, err := store.MigrateDown(ctx, 100)
	require.NoError(t, err)
	assertStatus(0, 0, "0001_order_mirror", "0002_idempotency_keys")

	done, err := store.MigrateUp(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_order_mirror"}, done)
	assertStatus(1, 1, "0002_idempotency_keys")

	done, err = store.MigrateUp(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_idempotency_keys"}, done)
	assertStatus(2, 2)

	done, err = store.MigrateUp(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, done)

	done, err = store.MigrateDown(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_idempotency_keys"}, done)
	assertStatus(1, 1, "0002_idempotency_keys")

	done, err = store.MigrateDown(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_order_mirror"}, done)
	assertStatus(0, 0, "0001_order_mirror", "0002_idempotency_keys")

	done, err = store.MigrateDown(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, done)

	_, err = store.MigrateUp(ctx, 0)
	require.NoError(t, err)
}

func TestMigrator_UnknownDirection(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	_, err := store.migrate(t.Context(), direction("sideways"), 0)
	require.ErrorIs(t, err, errUnknownDirection)
}
