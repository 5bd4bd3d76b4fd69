package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisStore on top of it
func setupTestRedis(t *testing.T, prefix string) (*RedisStore, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client, prefix)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return store, mr, cleanup
}

func TestGet_Success(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, "storefront")
	defer cleanup()

	require.NoError(t, mr.Set("storefront:session:u1:cart", `[{"product_id":"p1","qty":2}]`))

	data, err := store.Get(context.Background(), "session:u1:cart")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"product_id":"p1","qty":2}]`, string(data))
}

func TestGet_Missing(t *testing.T) {
	store, _, cleanup := setupTestRedis(t, "storefront")
	defer cleanup()

	data, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Nil(t, data)
}

func TestGet_ServerDown(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, "")
	defer cleanup()

	mr.Close()

	_, err := store.Get(context.Background(), "cart")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
	assert.Contains(t, err.Error(), "redis get failed")
}

func TestSet_StoresValueWithTTL(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, "")
	defer cleanup()

	err := store.Set(context.Background(), "wishlist", []byte(`[]`))
	require.NoError(t, err)

	stored, err := mr.Get("wishlist")
	require.NoError(t, err)
	assert.Equal(t, `[]`, stored)

	ttl := mr.TTL("wishlist")
	assert.True(t, ttl > 89*24*time.Hour, "TTL should be refreshed on write")
}

func TestSet_Overwrites(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, "")
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "cart", []byte(`[1]`)))
	require.NoError(t, store.Set(ctx, "cart", []byte(`[1,2]`)))

	stored, err := mr.Get("cart")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, stored)
}

func TestDelete(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t, "p")
	defer cleanup()

	require.NoError(t, mr.Set("p:cart", "[]"))
	assert.True(t, mr.Exists("p:cart"))

	require.NoError(t, store.Delete(context.Background(), "cart"))
	assert.False(t, mr.Exists("p:cart"))

	// Deleting a missing key is not an error
	assert.NoError(t, store.Delete(context.Background(), "cart"))
}

func TestKey_Format(t *testing.T) {
	assert.Equal(t, "storefront:session:1:cart", RedisStore{prefix: "storefront"}.key("session:1:cart"))
	assert.Equal(t, "cart", RedisStore{}.key("cart"))
}
