package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/powerdeck/powerdeck/internal/kvstore"
)

// RetryConfig tunes one retried invocation.
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
	// RetryableErrors overrides the default classification with substring
	// matches against the error text.
	RetryableErrors []string
	// OnRetry is invoked before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the defaults used for cache-store calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// ExhaustedError wraps the last failure after all attempts were consumed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// OperationStats accumulates per-operation-name retry counters.
type OperationStats struct {
	TotalAttempts      int64   `json:"total_attempts"`
	SuccessfulAttempts int64   `json:"successful_attempts"`
	FailedAttempts     int64   `json:"failed_attempts"`
	AverageAttempts    float64 `json:"average_attempts"`
	LastError          string  `json:"last_error,omitempty"`

	invocations int64
}

// Executor runs operations with exponential backoff and jitter.
type Executor struct {
	logger *slog.Logger

	mu    sync.Mutex
	stats map[string]*OperationStats

	sleep func(ctx context.Context, d time.Duration) error
	randF func() float64
}

// NewExecutor constructs an Executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		logger: logger,
		stats:  make(map[string]*OperationStats),
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
		randF: rand.Float64,
	}
}

// Execute runs op until it succeeds, fails fatally, or attempts run out.
// Retryable failures sleep between attempts; non-retryable errors propagate
// immediately without consuming the remaining budget.
func (e *Executor) Execute(ctx context.Context, name string, cfg RetryConfig, op func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = DefaultRetryConfig().BackoffMultiplier
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			e.record(name, attempt, nil)
			return nil
		}
		lastErr = err

		if !IsRetryable(err, cfg.RetryableErrors) {
			e.record(name, attempt, err)
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := e.backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		e.logger.Debug("retrying operation",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			e.record(name, attempt, sleepErr)
			return sleepErr
		}
	}

	e.record(name, cfg.MaxAttempts, lastErr)
	return &ExhaustedError{Attempts: cfg.MaxAttempts, Err: lastErr}
}

func (e *Executor) backoff(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay *= 0.5 + e.randF()*0.5
	}
	return time.Duration(delay)
}

func (e *Executor) record(name string, attempts int, err error) {
	if name == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[name]
	if !ok {
		s = &OperationStats{}
		e.stats[name] = s
	}
	s.TotalAttempts += int64(attempts)
	s.invocations++
	if err == nil {
		s.SuccessfulAttempts++
	} else {
		s.FailedAttempts++
		s.LastError = err.Error()
	}
	s.AverageAttempts = float64(s.TotalAttempts) / float64(s.invocations)
}

// Stats returns a copy of the counters for one operation name.
func (e *Executor) Stats(name string) (OperationStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[name]
	if !ok {
		return OperationStats{}, false
	}
	return *s, true
}

// AllStats returns a copy of every operation's counters.
func (e *Executor) AllStats() map[string]OperationStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]OperationStats, len(e.stats))
	for name, s := range e.stats {
		out[name] = *s
	}
	return out
}

// defaultRetryableSubstrings covers transient failures from dependencies that
// do not produce classified faults.
var defaultRetryableSubstrings = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"i/o timeout",
	"timeout",
	"temporarily unavailable",
	"eof",
	"408",
	"429",
	"500",
	"502",
	"503",
	"504",
}

// IsRetryable reports whether the failure is worth another attempt. Classified
// kvstore faults are matched by kind; everything else falls back to substring
// matching against overrides (when given) or the default transient set.
func IsRetryable(err error, overrides []string) bool {
	if err == nil {
		return false
	}
	if kind, ok := kvstore.KindOf(err); ok {
		switch kind {
		case kvstore.FaultTimeout, kvstore.FaultConnectionRefused, kvstore.FaultRateLimited, kvstore.FaultServerFault:
			return true
		default:
			return false
		}
	}
	patterns := overrides
	if len(patterns) == 0 {
		patterns = defaultRetryableSubstrings
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
