package jobs

import (
	"context"
	"errors"
	"testing"
)

func TestCacheWarmupWarmsAllScopesByDefault(t *testing.T) {
	warmed := map[string]int{}
	job := NewCacheWarmupJob(map[string]Warmer{
		"users":   func(ctx context.Context) error { warmed["users"]++; return nil },
		"reports": func(ctx context.Context) error { warmed["reports"]++; return nil },
	}, nil, nil)

	task, err := NewCacheWarmupTask(CacheWarmupPayload{})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if warmed["users"] != 1 || warmed["reports"] != 1 {
		t.Fatalf("expected both scopes warmed once, got %v", warmed)
	}
}

func TestCacheWarmupScopedPayload(t *testing.T) {
	warmed := map[string]int{}
	job := NewCacheWarmupJob(map[string]Warmer{
		"users":   func(ctx context.Context) error { warmed["users"]++; return nil },
		"reports": func(ctx context.Context) error { warmed["reports"]++; return nil },
	}, nil, nil)

	task, err := NewCacheWarmupTask(CacheWarmupPayload{Scopes: []string{"reports"}})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if warmed["users"] != 0 || warmed["reports"] != 1 {
		t.Fatalf("expected only reports warmed, got %v", warmed)
	}
}

func TestCacheWarmupReportsFailure(t *testing.T) {
	job := NewCacheWarmupJob(map[string]Warmer{
		"users": func(ctx context.Context) error { return errors.New("store down") },
	}, nil, nil)

	task, err := NewCacheWarmupTask(CacheWarmupPayload{})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err == nil {
		t.Fatal("expected an error when a scope fails")
	}
}
