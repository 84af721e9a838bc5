//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xtravels/backend/internal/domain/shared"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisScopeLocker(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	t.Run("blocks second holder until release", func(t *testing.T) {
		locker := NewRedisScopeLockerWithClient(client, "test:lock:", time.Minute, nil)

		release, err := locker.Lock(ctx, "Travels.travel_number")
		require.NoError(t, err)

		lockCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(lockCtx, "Travels.travel_number")
		assert.ErrorIs(t, err, shared.ErrLockTimeout)

		release()

		release, err = locker.Lock(ctx, "Travels.travel_number")
		require.NoError(t, err)
		release()
	})

	t.Run("release keeps a lock taken over after expiry", func(t *testing.T) {
		locker := NewRedisScopeLockerWithClient(client, "test:lock:", 50*time.Millisecond, nil)

		staleRelease, err := locker.Lock(ctx, "Bookings.pos|t-1")
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)

		release, err := locker.Lock(ctx, "Bookings.pos|t-1")
		require.NoError(t, err)
		defer release()

		staleRelease()
		exists, err := client.Exists(ctx, "test:lock:Bookings.pos|t-1").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})
}
