package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/session"
)

func newSharedStores(t *testing.T) (*Store, *Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Minute), New(rdb, time.Minute), mr
}

func TestSaveBumpsVersionAndRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	store, _, mr := newSharedStores(t)

	sess := domain.NewSession("s1", time.Now().UTC())
	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, int64(1), sess.Version)
	assert.Equal(t, time.Minute, mr.TTL(store.key("s1")))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)

	loaded.History.AddUser("hello")
	require.NoError(t, store.Save(ctx, loaded))
	assert.Equal(t, int64(2), loaded.Version)
}

func TestReplicasSavingSameLoadedVersionConflict(t *testing.T) {
	ctx := context.Background()
	replicaA, replicaB, _ := newSharedStores(t)
	require.NoError(t, replicaA.Save(ctx, domain.NewSession("s1", time.Now().UTC())))

	first, err := replicaA.Load(ctx, "s1")
	require.NoError(t, err)
	second, err := replicaB.Load(ctx, "s1")
	require.NoError(t, err)

	first.History.AddUser("from replica A")
	require.NoError(t, replicaA.Save(ctx, first))

	second.History.AddUser("from replica B")
	err = replicaB.Save(ctx, second)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
	assert.ErrorIs(t, err, session.ErrConflict)
	assert.Equal(t, int64(1), second.Version, "rejected save must not advance the caller's version")

	stored, err := replicaB.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, stored.History.Len())
	assert.Equal(t, "from replica A", stored.History.Turns()[0].Text)
	assert.Equal(t, int64(2), stored.Version)
}

func TestSaveAfterExpiryRecreatesSession(t *testing.T) {
	ctx := context.Background()
	store, _, mr := newSharedStores(t)

	sess := domain.NewSession("s1", time.Now().UTC())
	require.NoError(t, store.Save(ctx, sess))
	mr.FastForward(2 * time.Minute)

	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, int64(2), sess.Version)
}

func TestConflictDoesNotTripBreaker(t *testing.T) {
	class := classifyRedisError(session.ErrConflict)
	assert.False(t, class.Retryable)
	assert.False(t, class.RecordFailure)

	class = classifyRedisError(goredis.TxFailedErr)
	assert.False(t, class.RecordFailure)
}
