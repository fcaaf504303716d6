package settings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[int64]map[string]string
	reads  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[int64]map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, companyID int64, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	out := make(map[string]string)
	company := m.values[companyID]
	if len(keys) == 0 {
		for k, v := range company {
			out[k] = v
		}
		return out, nil
	}
	for _, k := range keys {
		if v, ok := company[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryStore) Put(_ context.Context, companyID int64, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[companyID] == nil {
		m.values[companyID] = make(map[string]string)
	}
	for k, v := range values {
		m.values[companyID][k] = v
	}
	return nil
}

func (m *memoryStore) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func newCache(t *testing.T, store Store) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(store, client, time.Minute, nil)
}

func TestCacheServesRepeatedReadsFromRedis(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Put(context.Background(), 1, map[string]string{"a": "1", "b": "2"}))
	cache := newCache(t, store)
	ctx := context.Background()

	first, err := cache.Get(ctx, 1, "b", "a")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, first)

	second, err := cache.Get(ctx, 1, "a", "b")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.readCount())
}

func TestCachePutInvalidatesForNextRead(t *testing.T) {
	store := newMemoryStore()
	cache := newCache(t, store)
	ctx := context.Background()

	values, err := cache.Get(ctx, 7, "a")
	require.NoError(t, err)
	require.Empty(t, values)

	require.NoError(t, cache.Put(ctx, 7, map[string]string{"a": "9"}))

	values, err = cache.Get(ctx, 7, "a")
	require.NoError(t, err)
	require.Equal(t, "9", values["a"])
	require.Equal(t, 2, store.readCount())
}

func TestCacheScopesVersionsPerCompany(t *testing.T) {
	store := newMemoryStore()
	cache := newCache(t, store)
	ctx := context.Background()

	_, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	_, err = cache.Get(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx, 1))

	_, err = cache.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, store.readCount())

	_, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, store.readCount())
}

func TestCacheWithoutRedisReadsThrough(t *testing.T) {
	store := newMemoryStore()
	cache := NewCache(store, nil, time.Minute, nil)
	require.NoError(t, cache.Put(context.Background(), 1, map[string]string{"k": "v"}))
	values, err := cache.Get(context.Background(), 1, "k")
	require.NoError(t, err)
	require.Equal(t, "v", values["k"])
}
