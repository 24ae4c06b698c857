//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"custsync/pkg/logger"
)

func setupRedis(t *testing.T) *redis.Client {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())

	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})
	return client
}

func TestRedisLocker_Integration_Exclusive(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLocker(client, time.Second, logger.NewTestLogger())
	b := NewRedisLocker(client, time.Second, logger.NewTestLogger())

	lease, err := a.Acquire(ctx, "customers")
	require.NoError(t, err)

	_, err = b.Acquire(ctx, "customers")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	again, err := b.Acquire(ctx, "customers")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLocker_Integration_RefreshKeepsLease(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	locker := NewRedisLocker(client, 300*time.Millisecond, logger.NewTestLogger())
	lease, err := locker.Acquire(ctx, "customers")
	require.NoError(t, err)
	defer lease.Release(ctx)

	time.Sleep(time.Second)

	_, err = locker.Acquire(ctx, "customers")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestRedisLocker_Integration_ExpiresWithoutHolder(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	// Simulate a crashed holder: the key exists but nobody refreshes it
	require.NoError(t, client.Set(ctx, keyPrefix+"customers", "dead-holder", 200*time.Millisecond).Err())

	locker := NewRedisLocker(client, time.Second, logger.NewTestLogger())
	_, err := locker.Acquire(ctx, "customers")
	assert.ErrorIs(t, err, ErrLocked)

	time.Sleep(400 * time.Millisecond)

	lease, err := locker.Acquire(ctx, "customers")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestRedisLocker_Integration_ReleaseDoesNotStealForeignLease(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	locker := NewRedisLocker(client, time.Second, logger.NewTestLogger())
	lease, err := locker.Acquire(ctx, "customers")
	require.NoError(t, err)

	// Another holder took over after expiry
	require.NoError(t, client.Set(ctx, keyPrefix+"customers", "someone-else", time.Minute).Err())
	require.NoError(t, lease.Release(ctx))

	val, err := client.Get(ctx, keyPrefix+"customers").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}
