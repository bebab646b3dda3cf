package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
)

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	val, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type cached struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func testCache(t *testing.T, cache core.Cache) {
	ctx := context.Background()

	var got cached
	found, err := cache.Get(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	want := cached{Name: "results", Count: 3}
	require.NoError(t, cache.Set(ctx, "k1", want, time.Hour))
	found, err = cache.Get(ctx, "k1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	require.NoError(t, cache.Delete(ctx, "k1", "missing"))
	found, err = cache.Get(ctx, "k1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache(t *testing.T) {
	fake := newFakeRedis()
	cache := &redisCache{client: fake}
	testCache(t, cache)

	require.NoError(t, cache.Set(context.Background(), "k2", 1, time.Minute))
	assert.Contains(t, fake.values, keyPrefix+"k2")
	assert.Equal(t, time.Minute, fake.ttls[keyPrefix+"k2"])
}

func TestMemoryCache(t *testing.T) {
	testCache(t, NewMemoryCache())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := &memoryCache{entries: make(map[string]entry), now: func() time.Time { return now }}
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))

	var got string
	found, _ := cache.Get(ctx, "k", &got)
	assert.True(t, found)

	now = now.Add(time.Minute)
	found, _ = cache.Get(ctx, "k", &got)
	assert.False(t, found)
	assert.Empty(t, cache.entries)
}
