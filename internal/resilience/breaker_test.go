package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failingOp(ctx context.Context) error { return errBoom }

func okOp(ctx context.Context) error { return nil }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	b := NewBreaker("database", cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, failingOp), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	// While open the wrapped operation must not run.
	called := false
	err := b.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	var openErr *BreakerOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "database", openErr.Name)
	assert.False(t, called)
}

func TestBreakerInterleavedFailuresStayClosed(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	// A flaky dependency never fails threshold times in a row.
	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, b.Execute(ctx, failingOp), errBoom)
		assert.ErrorIs(t, b.Execute(ctx, failingOp), errBoom)
		require.NoError(t, b.Execute(ctx, okOp))
		require.Equal(t, StateClosed, b.State())
	}
	assert.Zero(t, b.Snapshot().FailureCount)

	// Consecutive failures still trip it.
	for i := 0; i < 3; i++ {
		b.Execute(ctx, failingOp)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, failingOp)
	b.Execute(ctx, failingOp)
	require.Equal(t, StateOpen, b.State())

	// Recovery timeout elapses: one trial is let through and closes the circuit.
	*now = now.Add(time.Minute + time.Second)
	require.NoError(t, b.Execute(ctx, okOp))
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Snapshot().FailureCount)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, failingOp)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, failingOp), errBoom)
	assert.Equal(t, StateOpen, b.State())

	// The reopen refreshed the next attempt time.
	snap := b.Snapshot()
	assert.Equal(t, now.Add(time.Minute), snap.NextAttempt)
}

func TestBreakerIgnoredErrorsDoNotCount(t *testing.T) {
	ignorable := errors.New("not found")
	b, _ := newTestBreaker(BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		Ignore:           func(err error) bool { return errors.Is(err, ignorable) },
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Execute(ctx, func(ctx context.Context) error { return ignorable }), ignorable)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistryCachesByName(t *testing.T) {
	reg := NewRegistry(DefaultBreakerConfig(), nil)

	db := reg.Get("database")
	cacheStore := reg.Get("cache-store")
	assert.NotSame(t, db, cacheStore)
	assert.Same(t, db, reg.Get("database"))

	snapshots := reg.Snapshots()
	assert.Len(t, snapshots, 2)
}
