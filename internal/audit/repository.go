package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists and reads audit events.
type Repository interface {
	Insert(ctx context.Context, event Event) error
	Window(ctx context.Context, filters Filters, limit, offset int) ([]Event, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Insert(ctx context.Context, event Event) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
        INSERT INTO audit_events (user_id, action, resource, details, created_at)
        VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
    `, event.UserID, event.Action, event.Resource, detailsJSON, toPgTime(event.At))
	return err
}

func (r *pgRepository) Window(ctx context.Context, filters Filters, limit, offset int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, user_id, action, resource, details, created_at
        FROM audit_events
        WHERE ($1::timestamptz IS NULL OR created_at >= $1)
          AND ($2::timestamptz IS NULL OR created_at < $2)
          AND ($3::bigint = 0 OR user_id = $3)
          AND ($4::text = '' OR action = $4)
        ORDER BY created_at DESC, id DESC
        LIMIT $5 OFFSET $6
    `, toPgTime(filters.From), toPgTime(filters.To), filters.UserID, strings.TrimSpace(filters.Action), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event       Event
			detailsJSON []byte
			createdAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&event.ID, &event.UserID, &event.Action, &event.Resource, &detailsJSON, &createdAt); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &event.Details)
		}
		if createdAt.Valid {
			event.At = createdAt.Time
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
