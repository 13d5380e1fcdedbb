package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/skyscope/pkg/adapters/redis"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/aretw0/skyscope/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ports.RunViewStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewView("short-lived")))

	views, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, views, "short-lived")

	// Key expiration in miniredis follows its own clock.
	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "short-lived")
	assert.ErrorIs(t, err, domain.ErrViewNotFound)

	// Index pruning compares against time.Now().
	time.Sleep(1200 * time.Millisecond)

	views, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewView("mine")))

	assert.True(t, mr.Exists("custom:app:mine"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index:views"), "Expected index with custom prefix to exist")

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, list)
}

func TestRedisStore_RejectsInvalidID(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)

	err := store.Save(context.Background(), domain.NewView("a b"))
	assert.ErrorIs(t, err, domain.ErrInvalidViewID)
}

func TestRedisStore_ViewNamedIndex(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewView("index")))
	require.NoError(t, store.Save(ctx, domain.NewView("other")))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"index", "other"}, list)
}
