//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

func TestStoreAgainstRedis(t *testing.T) {
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
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store := New(goredis.NewClient(&goredis.Options{Addr: endpoint}), time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Load(ctx, "missing")
	require.True(t, domain.IsKind(err, domain.ErrSessionNotFound))

	sess := domain.NewSession("s1", time.Now().UTC())
	sess.ActiveFlow = domain.FlowNewCustomer
	sess.History.AddUser("new")
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, domain.FlowNewCustomer, loaded.ActiveFlow)
	require.Equal(t, 1, loaded.History.Len())

	ttl, err := store.rdb.TTL(ctx, store.key("s1")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	require.True(t, domain.IsKind(err, domain.ErrSessionNotFound))
}
