package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the shared Redis service behind a degrade-to-miss contract:
// when the service is unavailable every operation is a no-op returning zero
// values, never an error. Networked failures are returned as classified
// Faults so resilience wrappers can pattern-match on them.
type Store struct {
	client *redis.Client
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// SetOptions controls Set behaviour.
type SetOptions struct {
	TTL    time.Duration
	Prefix string
}

// Stats summarises the adapter and the underlying service.
type Stats struct {
	Connected  bool  `json:"connected"`
	MemoryUsed int64 `json:"memory_used"`
	KeyCount   int64 `json:"key_count"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
}

// New constructs a Store. A nil client yields an unavailable store that
// degrades silently instead of failing requests.
func New(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

// Available reports whether the underlying service is wired.
func (s *Store) Available() bool {
	return s != nil && s.client != nil
}

// Get fetches a value. A miss and an unavailable store both return (nil, nil).
func (s *Store) Get(ctx context.Context, key, prefix string) ([]byte, error) {
	if !s.Available() {
		return nil, nil
	}
	data, err := s.client.Get(ctx, s.key(prefix, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, nil
		}
		return nil, classify("get", err)
	}
	s.hits.Add(1)
	return data, nil
}

// Set stores a value with the configured TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	if !s.Available() {
		return nil
	}
	if err := s.client.Set(ctx, s.key(opts.Prefix, key), value, opts.TTL).Err(); err != nil {
		return classify("set", err)
	}
	return nil
}

// Del removes a key.
func (s *Store) Del(ctx context.Context, key, prefix string) error {
	if !s.Available() {
		return nil
	}
	if err := s.client.Del(ctx, s.key(prefix, key)).Err(); err != nil {
		return classify("del", err)
	}
	return nil
}

// DelPattern removes every key matching the glob pattern and returns the
// number of deleted keys. Uses SCAN to avoid blocking the service.
func (s *Store) DelPattern(ctx context.Context, pattern string) (int64, error) {
	if !s.Available() {
		return 0, nil
	}
	var deleted int64
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return classify("del_pattern", err)
		}
		deleted += n
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, classify("del_pattern", err)
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Exists reports whether the key is present.
func (s *Store) Exists(ctx context.Context, key, prefix string) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.key(prefix, key)).Result()
	if err != nil {
		return false, classify("exists", err)
	}
	return n > 0, nil
}

// TTL returns the remaining lifetime of a key. Missing keys report zero.
func (s *Store) TTL(ctx context.Context, key, prefix string) (time.Duration, error) {
	if !s.Available() {
		return 0, nil
	}
	ttl, err := s.client.TTL(ctx, s.key(prefix, key)).Result()
	if err != nil {
		return 0, classify("ttl", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Incr atomically increments a counter key.
func (s *Store) Incr(ctx context.Context, key, prefix string) (int64, error) {
	if !s.Available() {
		return 0, nil
	}
	n, err := s.client.Incr(ctx, s.key(prefix, key)).Result()
	if err != nil {
		return 0, classify("incr", err)
	}
	return n, nil
}

// SAdd inserts members into a set.
func (s *Store) SAdd(ctx context.Context, setKey string, members ...string) error {
	if !s.Available() || len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, setKey, args...).Err(); err != nil {
		return classify("sadd", err)
	}
	return nil
}

// SMembers lists all members of a set.
func (s *Store) SMembers(ctx context.Context, setKey string) ([]string, error) {
	if !s.Available() {
		return nil, nil
	}
	members, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, classify("smembers", err)
	}
	return members, nil
}

// SRem removes members from a set.
func (s *Store) SRem(ctx context.Context, setKey string, members ...string) error {
	if !s.Available() || len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, setKey, args...).Err(); err != nil {
		return classify("srem", err)
	}
	return nil
}

// Expire sets the TTL on an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return classify("expire", err)
	}
	return nil
}

// Stats collects service-level and adapter-level counters. Failures degrade
// to a disconnected report rather than an error.
func (s *Store) Stats(ctx context.Context) Stats {
	stats := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
	if !s.Available() {
		return stats
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("kvstore ping failed", slog.Any("error", err))
		return stats
	}
	stats.Connected = true
	if n, err := s.client.DBSize(ctx).Result(); err == nil {
		stats.KeyCount = n
	}
	if info, err := s.client.Info(ctx, "memory").Result(); err == nil {
		stats.MemoryUsed = parseUsedMemory(info)
	}
	return stats
}

func (s *Store) key(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
