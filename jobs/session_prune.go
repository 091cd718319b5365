package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powerdeck/powerdeck/internal/observability"
)

// SessionPruneJob removes expired session records from Postgres. The
// Redis copies expire on their own TTL; the persisted rows are kept for
// the audit trail and need periodic cleanup.
type SessionPruneJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewSessionPruneJob wires dependencies for the prune handler.
func NewSessionPruneJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *SessionPruneJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPruneJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes session prune tasks.
func (j *SessionPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("session prune: handler not configured")
	}
	tag, err := j.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if j.Metrics != nil {
		j.Metrics.RecordJob(TaskSessionPrune, err)
	}
	if err != nil {
		j.Logger.Error("session prune failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("sessions pruned", slog.Int64("removed", tag.RowsAffected()))
	return nil
}
