package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/powerdeck/powerdeck/internal/observability"
)

// Warmer re-primes a single cache scope.
type Warmer func(ctx context.Context) error

// CacheWarmupJob pre-populates the hot listing caches so the first
// dashboard request after a deploy or invalidation does not pay the
// database round trip.
type CacheWarmupJob struct {
	Warmers map[string]Warmer
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(warmers map[string]Warmer, logger *slog.Logger, metrics *observability.Metrics) *CacheWarmupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheWarmupJob{Warmers: warmers, Logger: logger, Metrics: metrics}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	scopes := payload.Scopes
	if len(scopes) == 0 {
		for name := range j.Warmers {
			scopes = append(scopes, name)
		}
		sort.Strings(scopes)
	}

	var failed []string
	for _, scope := range scopes {
		warm, ok := j.Warmers[scope]
		if !ok {
			j.Logger.Warn("cache warmup: unknown scope", slog.String("scope", scope))
			continue
		}
		if err := warm(ctx); err != nil {
			j.Logger.Error("cache warmup failed", slog.String("scope", scope), slog.Any("error", err))
			failed = append(failed, scope)
			continue
		}
		j.Logger.Info("cache warmed", slog.String("scope", scope))
	}

	var resultErr error
	if len(failed) > 0 {
		resultErr = errors.New("cache warmup: failed scopes: " + failed[0])
	}
	if j.Metrics != nil {
		j.Metrics.RecordJob(TaskCacheWarmup, resultErr)
	}
	return resultErr
}

// WarmAll runs every registered warmer once. Used at startup and by the
// admin warm endpoint.
func (j *CacheWarmupJob) WarmAll(ctx context.Context) error {
	if j == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var firstErr error
	for _, name := range j.scopeNames() {
		if err := j.Warmers[name](ctx); err != nil {
			j.Logger.Error("cache warmup failed", slog.String("scope", name), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (j *CacheWarmupJob) scopeNames() []string {
	names := make([]string, 0, len(j.Warmers))
	for name := range j.Warmers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
