package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/powerdeck/powerdeck/internal/kvstore"
	"github.com/powerdeck/powerdeck/internal/resilience"
)

// Entry is the envelope persisted in both cache layers.
type Entry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"timestamp"`
	TTL      time.Duration   `json:"ttl"`
	Tags     []string        `json:"tags,omitempty"`
	Version  string          `json:"version,omitempty"`
}

// Options controls a single Set/GetOrSet call.
type Options struct {
	TTL  time.Duration
	Tags []string
	// StaleWhileRevalidate is the age after which a hit is served stale and
	// refreshed in the background.
	StaleWhileRevalidate time.Duration
}

// Config tunes the multi-layer cache.
type Config struct {
	// Prefix namespaces every key in the shared store.
	Prefix string
	// MaxMemoryEntries bounds the in-process layer.
	MaxMemoryEntries int
	// DefaultTTL applies when Options.TTL is zero.
	DefaultTTL time.Duration
	// BackgroundQueueSize bounds the detached refresh queue.
	BackgroundQueueSize int
}

// Stats reports cache counters and the rolling average latency.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Sets          int64   `json:"sets"`
	Deletes       int64   `json:"deletes"`
	Errors        int64   `json:"errors"`
	MemoryEntries int     `json:"memory_entries"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
}

// WarmEntry describes one entry of the warm set.
type WarmEntry struct {
	Key     string
	Loader  func(context.Context) (any, error)
	Options Options
}

// Loader produces the value for a cache miss.
type Loader func(context.Context) (any, error)

// Cache composes the in-process memory layer with the shared key-value store.
// Every networked call is guarded by the cache-store circuit breaker and the
// retry executor. No public method ever propagates an infrastructure error:
// failures are counted and degrade to a miss.
type Cache struct {
	store   *kvstore.Store
	breaker *resilience.Breaker
	retry   *resilience.Executor
	memory  *memoryLayer
	runner  *backgroundRunner
	logger  *slog.Logger

	prefix     string
	defaultTTL time.Duration
	retryCfg   resilience.RetryConfig
	now        func() time.Time

	mu        sync.Mutex
	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	errs      int64
	latencies []time.Duration
	latIdx    int
	latFull   bool
}

const latencyWindow = 1000

// New constructs the multi-layer cache.
func New(store *kvstore.Store, breaker *resilience.Breaker, retry *resilience.Executor, cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cache"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	now := time.Now
	return &Cache{
		store:      store,
		breaker:    breaker,
		retry:      retry,
		memory:     newMemoryLayer(cfg.MaxMemoryEntries, now),
		runner:     newBackgroundRunner(cfg.BackgroundQueueSize, logger),
		logger:     logger,
		prefix:     cfg.Prefix,
		defaultTTL: cfg.DefaultTTL,
		retryCfg:   resilience.DefaultRetryConfig(),
		now:        now,
		latencies:  make([]time.Duration, latencyWindow),
	}
}

// Close stops the background refresher.
func (c *Cache) Close() {
	c.runner.Close()
}

// Get loads a value into dest. Memory first, then the shared store with a
// memory backfill. Returns false on an all-layer miss or any failure.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	defer c.timeOp(c.now())

	if entry, ok := c.memory.get(key); ok {
		if err := json.Unmarshal(entry.Data, dest); err == nil {
			c.count(&c.hits)
			return true
		}
	}

	entry, err := c.remoteGet(ctx, key)
	if err != nil {
		c.recordError("get", key, err)
		c.count(&c.misses)
		return false
	}
	if entry == nil {
		c.count(&c.misses)
		return false
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		c.recordError("get", key, err)
		c.count(&c.misses)
		return false
	}
	c.memory.set(key, *entry)
	c.count(&c.hits)
	return true
}

// Set writes a value into both layers and registers its tags.
func (c *Cache) Set(ctx context.Context, key string, value any, opts Options) {
	defer c.timeOp(c.now())

	data, err := json.Marshal(value)
	if err != nil {
		c.recordError("set", key, err)
		return
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := Entry{Data: data, StoredAt: c.now(), TTL: ttl, Tags: opts.Tags}
	c.memory.set(key, entry)
	c.count(&c.sets)

	if err := c.remoteSet(ctx, key, entry); err != nil {
		c.recordError("set", key, err)
		return
	}
	if len(opts.Tags) > 0 {
		if err := c.registerTags(ctx, key, opts.Tags, ttl); err != nil {
			c.recordError("set_tags", key, err)
		}
	}
}

// GetOrSet returns the cached value or invokes loader, stores the result and
// returns it. Concurrent misses for the same key may both run the loader; the
// race is accepted for idempotent loaders.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest any, loader Loader, opts Options) error {
	if c.Get(ctx, key, dest) {
		return nil
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	c.Set(ctx, key, value, opts)
	return assign(value, dest)
}

// GetStaleWhileRevalidate behaves like GetOrSet, except that a hit older than
// opts.StaleWhileRevalidate is returned as-is while a detached background
// refresh re-runs the loader. Refresh failures are logged, never surfaced.
func (c *Cache) GetStaleWhileRevalidate(ctx context.Context, key string, dest any, loader Loader, opts Options) error {
	entry, ok := c.lookup(ctx, key)
	if !ok {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		c.Set(ctx, key, value, opts)
		return assign(value, dest)
	}

	if err := json.Unmarshal(entry.Data, dest); err != nil {
		c.recordError("swr", key, err)
		value, loadErr := loader(ctx)
		if loadErr != nil {
			return loadErr
		}
		c.Set(ctx, key, value, opts)
		return assign(value, dest)
	}

	age := c.now().Sub(entry.StoredAt)
	if opts.StaleWhileRevalidate > 0 && age > opts.StaleWhileRevalidate {
		c.runner.enqueue("revalidate:"+key, func(taskCtx context.Context) error {
			value, err := loader(taskCtx)
			if err != nil {
				return err
			}
			c.Set(taskCtx, key, value, opts)
			return nil
		})
	}
	return nil
}

// MGet returns the raw payloads found for the given keys.
func (c *Cache) MGet(ctx context.Context, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		var raw json.RawMessage
		if c.Get(ctx, key, &raw) {
			out[key] = raw
		}
	}
	return out
}

// MSet stores a batch of values with shared options.
func (c *Cache) MSet(ctx context.Context, values map[string]any, opts Options) {
	for key, value := range values {
		c.Set(ctx, key, value, opts)
	}
}

// InvalidateKey removes a single key from both layers.
func (c *Cache) InvalidateKey(ctx context.Context, key string) {
	c.memory.delete(key)
	c.count(&c.deletes)
	if err := c.remoteCall(ctx, "cache-store.del", func(opCtx context.Context) error {
		return c.store.Del(opCtx, key, c.prefix)
	}); err != nil {
		c.recordError("del", key, err)
	}
}

// InvalidateByTags removes every key registered under the given tags, then
// the tag sets themselves, and purges matching memory entries.
func (c *Cache) InvalidateByTags(ctx context.Context, tags []string) {
	for _, tag := range tags {
		var members []string
		err := c.remoteCall(ctx, "cache-store.smembers", func(opCtx context.Context) error {
			var opErr error
			members, opErr = c.store.SMembers(opCtx, c.tagKey(tag))
			return opErr
		})
		if err != nil {
			c.recordError("invalidate_tags", tag, err)
		}
		for _, member := range members {
			c.InvalidateKey(ctx, member)
		}
		if err := c.remoteCall(ctx, "cache-store.del", func(opCtx context.Context) error {
			return c.store.Del(opCtx, c.tagKey(tag), "")
		}); err != nil {
			c.recordError("invalidate_tags", tag, err)
		}
		c.memory.deleteByTag(tag)
	}
}

// InvalidateByPattern removes keys matching a glob pattern from both layers.
func (c *Cache) InvalidateByPattern(ctx context.Context, pattern string) int64 {
	removed := int64(c.memory.deleteByPattern(pattern))
	var remote int64
	err := c.remoteCall(ctx, "cache-store.del_pattern", func(opCtx context.Context) error {
		var opErr error
		remote, opErr = c.store.DelPattern(opCtx, c.prefix+":"+pattern)
		return opErr
	})
	if err != nil {
		c.recordError("invalidate_pattern", pattern, err)
	}
	c.count(&c.deletes)
	return removed + remote
}

// Clear empties both layers under this cache's prefix.
func (c *Cache) Clear(ctx context.Context) {
	c.memory.clear()
	if err := c.remoteCall(ctx, "cache-store.del_pattern", func(opCtx context.Context) error {
		_, opErr := c.store.DelPattern(opCtx, c.prefix+":*")
		return opErr
	}); err != nil {
		c.recordError("clear", "", err)
	}
	c.count(&c.deletes)
}

// WarmCache populates the given entries, loading misses in parallel.
func (c *Cache) WarmCache(ctx context.Context, entries []WarmEntry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, entry := range entries {
		g.Go(func() error {
			var discard json.RawMessage
			return c.GetOrSet(gctx, entry.Key, &discard, entry.Loader, entry.Options)
		})
	}
	return g.Wait()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.latIdx
	if c.latFull {
		n = latencyWindow
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += c.latencies[i]
	}
	avg := 0.0
	if n > 0 {
		avg = float64(total.Microseconds()) / float64(n) / 1000.0
	}
	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		Sets:          c.sets,
		Deletes:       c.deletes,
		Errors:        c.errs,
		MemoryEntries: c.memory.len(),
		AvgLatencyMS:  avg,
	}
}

// lookup fetches the raw entry from memory or the shared store without
// counting hit/miss, used by the stale-while-revalidate path.
func (c *Cache) lookup(ctx context.Context, key string) (*Entry, bool) {
	if entry, ok := c.memory.get(key); ok {
		return &entry, true
	}
	entry, err := c.remoteGet(ctx, key)
	if err != nil {
		c.recordError("lookup", key, err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	c.memory.set(key, *entry)
	return entry, true
}

func (c *Cache) remoteGet(ctx context.Context, key string) (*Entry, error) {
	var entry *Entry
	err := c.remoteCall(ctx, "cache-store.get", func(opCtx context.Context) error {
		data, opErr := c.store.Get(opCtx, key, c.prefix)
		if opErr != nil {
			return opErr
		}
		if data == nil {
			return nil
		}
		var decoded Entry
		if jsonErr := json.Unmarshal(data, &decoded); jsonErr != nil {
			return jsonErr
		}
		entry = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *Cache) remoteSet(ctx context.Context, key string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.remoteCall(ctx, "cache-store.set", func(opCtx context.Context) error {
		return c.store.Set(opCtx, key, payload, kvstore.SetOptions{TTL: entry.TTL, Prefix: c.prefix})
	})
}

func (c *Cache) registerTags(ctx context.Context, key string, tags []string, ttl time.Duration) error {
	return c.remoteCall(ctx, "cache-store.sadd", func(opCtx context.Context) error {
		for _, tag := range tags {
			if err := c.store.SAdd(opCtx, c.tagKey(tag), key); err != nil {
				return err
			}
			if err := c.store.Expire(opCtx, c.tagKey(tag), ttl); err != nil {
				return err
			}
		}
		return nil
	})
}

// remoteCall wraps a shared-store operation with the circuit breaker and the
// retry executor, breaker outermost so a failed retry run counts once.
func (c *Cache) remoteCall(ctx context.Context, name string, op func(context.Context) error) error {
	return c.breaker.Execute(ctx, func(brCtx context.Context) error {
		return c.retry.Execute(brCtx, name, c.retryCfg, op)
	})
}

func (c *Cache) tagKey(tag string) string {
	return c.prefix + ":tag:" + tag
}

func (c *Cache) count(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

func (c *Cache) recordError(op, key string, err error) {
	c.mu.Lock()
	c.errs++
	c.mu.Unlock()
	c.logger.Debug("cache operation degraded",
		slog.String("op", op),
		slog.String("key", key),
		slog.Any("error", err))
}

func (c *Cache) timeOp(start time.Time) {
	elapsed := c.now().Sub(start)
	c.mu.Lock()
	c.latencies[c.latIdx] = elapsed
	c.latIdx++
	if c.latIdx == latencyWindow {
		c.latIdx = 0
		c.latFull = true
	}
	c.mu.Unlock()
}

func assign(value any, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
