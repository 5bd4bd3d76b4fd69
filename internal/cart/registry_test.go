package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ReturnsSameManager(t *testing.T) {
	r := NewRegistry(newMockStore(), nil)

	var wg sync.WaitGroup
	managers := make([]*Manager, 10)
	for i := range managers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.Get(context.Background(), "u1")
			assert.NoError(t, err)
			managers[i] = m
		}(i)
	}
	wg.Wait()

	for _, m := range managers {
		assert.Same(t, managers[0], m)
	}
	assert.True(t, managers[0].Ready())
}

func TestRegistry_SeparatesUsers(t *testing.T) {
	r := NewRegistry(newMockStore(), nil)

	a, err := r.Get(context.Background(), "a")
	require.NoError(t, err)
	b, err := r.Get(context.Background(), "b")
	require.NoError(t, err)

	a.AddToCart(product("p1", "Mug", 100))

	assert.Len(t, a.Cart(), 1)
	assert.Empty(t, b.Cart())
}

func TestRegistry_RetriesFailedLoad(t *testing.T) {
	store := newMockStore()
	store.failGets(errors.New("connection refused"))
	r := NewRegistry(store, nil)

	_, err := r.Get(context.Background(), "u1")
	require.Error(t, err)

	store.failGets(nil)
	m, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, m.Ready())
}

func TestRegistry_Flush(t *testing.T) {
	store := newMockStore()
	r := NewRegistry(store, nil)

	m, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)
	m.AddToCart(product("p1", "Mug", 100))

	require.NoError(t, r.Flush(context.Background()))
	_, ok := store.raw("session:u1:cart")
	assert.True(t, ok)
}

func TestRegistry_EvictIdle(t *testing.T) {
	store := newMockStore()
	r := NewRegistry(store, nil)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	old, err := r.Get(context.Background(), "old")
	require.NoError(t, err)
	old.AddToCart(product("p1", "Mug", 100))
	require.NoError(t, old.Flush(context.Background()))

	watched, err := r.Get(context.Background(), "watched")
	require.NoError(t, err)
	_, cancel := watched.Subscribe()
	defer cancel()

	now = now.Add(time.Hour)
	_, err = r.Get(context.Background(), "fresh")
	require.NoError(t, err)

	assert.Equal(t, 1, r.EvictIdle(30*time.Minute))
	assert.Equal(t, 2, r.Len())

	reloaded, err := r.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.NotSame(t, old, reloaded)
	require.Len(t, reloaded.Cart(), 1)
	assert.Equal(t, "p1", reloaded.Cart()[0].ProductID)
}

func TestRegistry_GetKeepsSessionAlive(t *testing.T) {
	r := NewRegistry(newMockStore(), nil)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	m, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	_, err = r.Get(context.Background(), "u1")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	assert.Zero(t, r.EvictIdle(30*time.Minute))

	again, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Same(t, m, again)
}

func TestRegistry_StartClose(t *testing.T) {
	r := NewRegistry(newMockStore(), nil)
	_, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)

	r.Start(10*time.Millisecond, time.Nanosecond)
	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 10*time.Millisecond)
	r.Close()
	r.Close()
}
