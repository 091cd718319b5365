package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerdeck/powerdeck/internal/kvstore"
	"github.com/powerdeck/powerdeck/internal/resilience"
)

type fixture struct {
	cache *Cache
	mr    *miniredis.Miniredis
	now   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := kvstore.New(client, nil)
	breaker := resilience.NewBreaker("cache-store", resilience.DefaultBreakerConfig())
	retry := resilience.NewExecutor(nil)

	c := New(store, breaker, retry, Config{Prefix: "test", MaxMemoryEntries: 100, DefaultTTL: time.Minute}, nil)
	t.Cleanup(c.Close)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.memory.now = c.now
	c.retryCfg = resilience.RetryConfig{MaxAttempts: 1}
	return &fixture{cache: c, mr: mr, now: &now}
}

type unit struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestCacheRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.Set(ctx, "unit:1", unit{ID: 1, Name: "Substation A"}, Options{TTL: time.Minute})

	var got unit
	require.True(t, f.cache.Get(ctx, "unit:1", &got))
	assert.Equal(t, unit{ID: 1, Name: "Substation A"}, got)

	stats := f.cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestCacheTTLExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.Set(ctx, "unit:1", unit{ID: 1}, Options{TTL: time.Minute})

	*f.now = f.now.Add(2 * time.Minute)
	f.mr.FastForward(2 * time.Minute)

	var got unit
	assert.False(t, f.cache.Get(ctx, "unit:1", &got))
}

func TestCacheRemoteBackfillsMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.Set(ctx, "unit:1", unit{ID: 1}, Options{TTL: time.Minute})
	f.cache.memory.clear()

	var got unit
	require.True(t, f.cache.Get(ctx, "unit:1", &got))
	assert.Equal(t, 1, f.cache.memory.len())
}

func TestGetOrSetInvokesLoaderOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var calls atomic.Int32
	loader := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return unit{ID: 7}, nil
	}

	var got unit
	require.NoError(t, f.cache.GetOrSet(ctx, "unit:7", &got, loader, Options{TTL: time.Minute}))
	assert.Equal(t, 7, got.ID)

	var again unit
	require.NoError(t, f.cache.GetOrSet(ctx, "unit:7", &again, loader, Options{TTL: time.Minute}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrSetLoaderErrorPropagates(t *testing.T) {
	f := newFixture(t)

	boom := errors.New("database down")
	var got unit
	err := f.cache.GetOrSet(context.Background(), "unit:9", &got, func(ctx context.Context) (any, error) {
		return nil, boom
	}, Options{})
	assert.ErrorIs(t, err, boom)
}

func TestStaleWhileRevalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.Set(ctx, "units:list", []unit{{ID: 1, Name: "old"}}, Options{TTL: time.Hour})

	// Age past the stale threshold but within the TTL.
	*f.now = f.now.Add(10 * time.Minute)

	var refreshed atomic.Bool
	loader := func(ctx context.Context) (any, error) {
		refreshed.Store(true)
		return []unit{{ID: 1, Name: "new"}}, nil
	}

	var got []unit
	opts := Options{TTL: time.Hour, StaleWhileRevalidate: 5 * time.Minute}
	require.NoError(t, f.cache.GetStaleWhileRevalidate(ctx, "units:list", &got, loader, opts))

	// Stale value served immediately.
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].Name)

	// Background refresh repopulates the cache.
	require.Eventually(t, refreshed.Load, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		var latest []unit
		return f.cache.Get(ctx, "units:list", &latest) && latest[0].Name == "new"
	}, time.Second, 5*time.Millisecond)
}

func TestStaleWhileRevalidateFreshValueSkipsRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.Set(ctx, "units:list", []unit{{ID: 1}}, Options{TTL: time.Hour})

	var got []unit
	opts := Options{TTL: time.Hour, StaleWhileRevalidate: 5 * time.Minute}
	require.NoError(t, f.cache.GetStaleWhileRevalidate(ctx, "units:list", &got, func(ctx context.Context) (any, error) {
		t.Fatal("loader must not run for a fresh hit")
		return nil, nil
	}, opts))
	assert.Len(t, got, 1)
}

func TestInvalidateByTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.Set(ctx, "r:1", unit{ID: 1}, Options{TTL: time.Minute, Tags: []string{"reports"}})
	f.cache.Set(ctx, "r:2", unit{ID: 2}, Options{TTL: time.Minute, Tags: []string{"reports"}})
	f.cache.Set(ctx, "u:1", unit{ID: 3}, Options{TTL: time.Minute, Tags: []string{"power-units"}})

	f.cache.InvalidateByTags(ctx, []string{"reports"})

	var got unit
	assert.False(t, f.cache.Get(ctx, "r:1", &got))
	assert.False(t, f.cache.Get(ctx, "r:2", &got))
	assert.True(t, f.cache.Get(ctx, "u:1", &got))
	assert.False(t, f.mr.Exists("test:tag:reports"))
}

func TestInvalidateByPattern(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.Set(ctx, "reports:list:p1", unit{ID: 1}, Options{TTL: time.Minute})
	f.cache.Set(ctx, "reports:list:p2", unit{ID: 2}, Options{TTL: time.Minute})
	f.cache.Set(ctx, "voicebot:list", unit{ID: 3}, Options{TTL: time.Minute})

	f.cache.InvalidateByPattern(ctx, "reports:*")

	var got unit
	assert.False(t, f.cache.Get(ctx, "reports:list:p1", &got))
	assert.False(t, f.cache.Get(ctx, "reports:list:p2", &got))
	assert.True(t, f.cache.Get(ctx, "voicebot:list", &got))
}

func TestMGetMSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.MSet(ctx, map[string]any{
		"a": unit{ID: 1},
		"b": unit{ID: 2},
	}, Options{TTL: time.Minute})

	found := f.cache.MGet(ctx, []string{"a", "b", "missing"})
	assert.Len(t, found, 2)

	var got unit
	require.NoError(t, json.Unmarshal(found["a"], &got))
	assert.Equal(t, 1, got.ID)
}

func TestWarmCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entries := []WarmEntry{
		{Key: "warm:a", Loader: func(ctx context.Context) (any, error) { return unit{ID: 1}, nil }, Options: Options{TTL: time.Minute}},
		{Key: "warm:b", Loader: func(ctx context.Context) (any, error) { return unit{ID: 2}, nil }, Options: Options{TTL: time.Minute}},
	}
	require.NoError(t, f.cache.WarmCache(ctx, entries))

	var got unit
	assert.True(t, f.cache.Get(ctx, "warm:a", &got))
	assert.True(t, f.cache.Get(ctx, "warm:b", &got))
}

func TestCacheDegradesWhenStoreDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mr.Close()

	// No error escapes; everything is a miss.
	f.cache.Set(ctx, "k", unit{ID: 1}, Options{TTL: time.Minute})
	f.cache.memory.clear()

	var got unit
	assert.False(t, f.cache.Get(ctx, "k", &got))
	assert.Greater(t, f.cache.Stats().Errors, int64(0))
}

func TestMemoryEvictionOldestFirst(t *testing.T) {
	now := time.Now()
	m := newMemoryLayer(2, func() time.Time { return now })

	m.set("a", Entry{Data: []byte(`1`), StoredAt: now, TTL: time.Hour})
	m.set("b", Entry{Data: []byte(`2`), StoredAt: now, TTL: time.Hour})
	m.set("c", Entry{Data: []byte(`3`), StoredAt: now, TTL: time.Hour})

	_, ok := m.get("a")
	assert.False(t, ok)
	_, ok = m.get("b")
	assert.True(t, ok)
	_, ok = m.get("c")
	assert.True(t, ok)
}

func TestGlobToRegexp(t *testing.T) {
	re, err := globToRegexp("reports:*:summary")
	require.NoError(t, err)
	assert.True(t, re.MatchString("reports:2026-01:summary"))
	assert.False(t, re.MatchString("reports:2026-01:detail"))
	assert.False(t, re.MatchString("xreports:2026-01:summary"))
}
