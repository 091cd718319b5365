package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCacheWarmup re-primes the hot cache entries.
	TaskCacheWarmup = "cache:warmup"
	// TaskSessionPrune removes expired session records.
	TaskSessionPrune = "sessions:prune"
)

// CacheWarmupPayload selects which cache scopes to warm. An empty list
// warms every registered scope.
type CacheWarmupPayload struct {
	Scopes []string `json:"scopes,omitempty"`
}

// NewCacheWarmupTask constructs an Asynq task for cache warmup.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}

// NewSessionPruneTask constructs an Asynq task for session pruning.
func NewSessionPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPrune, nil)
}
