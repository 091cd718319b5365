package cache

import (
	"context"
	"log/slog"
	"sync"
)

// backgroundRunner executes detached refresh tasks on a single worker with a
// bounded queue. Task failures are logged and never surfaced to the request
// that scheduled them; there is no cancellation of an in-flight task.
type backgroundRunner struct {
	tasks  chan backgroundTask
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

type backgroundTask struct {
	name string
	fn   func(context.Context) error
}

func newBackgroundRunner(queueSize int, logger *slog.Logger) *backgroundRunner {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &backgroundRunner{
		tasks:  make(chan backgroundTask, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *backgroundRunner) run() {
	defer close(r.done)
	for task := range r.tasks {
		// Detached from the scheduling request's lifecycle on purpose.
		if err := task.fn(context.Background()); err != nil {
			r.logger.Error("background cache task failed",
				slog.String("task", task.name),
				slog.Any("error", err))
		}
	}
}

// enqueue schedules a task. Returns false when the queue is saturated, in
// which case the task is dropped and logged.
func (r *backgroundRunner) enqueue(name string, fn func(context.Context) error) bool {
	select {
	case r.tasks <- backgroundTask{name: name, fn: fn}:
		return true
	default:
		r.logger.Warn("background cache queue full, dropping task", slog.String("task", name))
		return false
	}
}

// Close drains pending tasks and stops the worker.
func (r *backgroundRunner) Close() {
	r.closeOnce.Do(func() {
		close(r.tasks)
	})
	<-r.done
}
