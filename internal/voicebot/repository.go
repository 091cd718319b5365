package voicebot

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powerdeck/powerdeck/internal/shared"
)

// RepositoryPort abstracts call persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context, limit int) ([]Call, error)
	FindByID(ctx context.Context, id int64) (*Call, error)
	Insert(ctx context.Context, call Call) (*Call, error)
	Delete(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const callColumns = `id, call_sid, caller, intent, status, duration_seconds, transcript, started_at, created_at`

// List returns recent calls, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Call, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+callColumns+` FROM voicebot_calls ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// FindByID loads one call.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Call, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+callColumns+` FROM voicebot_calls WHERE id = $1`, id)
	call, err := scanCall(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return call, nil
}

// Insert records one finished call.
func (r *Repository) Insert(ctx context.Context, call Call) (*Call, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO voicebot_calls (call_sid, caller, intent, status, duration_seconds, transcript, started_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        RETURNING `+callColumns,
		call.CallSID, call.Caller, call.Intent, call.Status, call.DurationSeconds, call.Transcript, call.StartedAt)
	inserted, err := scanCall(row)
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// Delete removes a call record.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM voicebot_calls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanCall(row pgx.Row) (*Call, error) {
	var call Call
	err := row.Scan(&call.ID, &call.CallSID, &call.Caller, &call.Intent, &call.Status, &call.DurationSeconds, &call.Transcript, &call.StartedAt, &call.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &call, nil
}

var _ RepositoryPort = (*Repository)(nil)
