package powerunits

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powerdeck/powerdeck/internal/shared"
)

// RepositoryPort abstracts unit persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context) ([]PowerUnit, error)
	FindByID(ctx context.Context, id int64) (*PowerUnit, error)
	Create(ctx context.Context, unit PowerUnit) (*PowerUnit, error)
	Update(ctx context.Context, unit PowerUnit) (*PowerUnit, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*PowerUnit, error)
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

const unitColumns = `id, name, location, capacity_kw, status, last_seen_at, created_at, updated_at`

// List returns all units ordered by name.
func (r *Repository) List(ctx context.Context) ([]PowerUnit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+unitColumns+` FROM power_units ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []PowerUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *unit)
	}
	return units, rows.Err()
}

// FindByID loads one unit.
func (r *Repository) FindByID(ctx context.Context, id int64) (*PowerUnit, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+unitColumns+` FROM power_units WHERE id = $1`, id)
	return wrapScan(row)
}

// Create registers a new unit starting offline.
func (r *Repository) Create(ctx context.Context, unit PowerUnit) (*PowerUnit, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO power_units (name, location, capacity_kw, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        RETURNING `+unitColumns,
		unit.Name, unit.Location, unit.CapacityKW, StatusOffline)
	return wrapScan(row)
}

// Update rewrites the descriptive fields.
func (r *Repository) Update(ctx context.Context, unit PowerUnit) (*PowerUnit, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE power_units
        SET name = $2, location = $3, capacity_kw = $4, updated_at = NOW()
        WHERE id = $1
        RETURNING `+unitColumns,
		unit.ID, unit.Name, unit.Location, unit.CapacityKW)
	return wrapScan(row)
}

// UpdateStatus transitions the unit and stamps last_seen_at for ONLINE.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) (*PowerUnit, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE power_units
        SET status = $2,
            last_seen_at = CASE WHEN $2 = 'ONLINE' THEN NOW() ELSE last_seen_at END,
            updated_at = NOW()
        WHERE id = $1
        RETURNING `+unitColumns, id, status)
	return wrapScan(row)
}

// Delete removes a unit permanently.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM power_units WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func wrapScan(row pgx.Row) (*PowerUnit, error) {
	unit, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return unit, nil
}

func scanUnit(row pgx.Row) (*PowerUnit, error) {
	var (
		unit     PowerUnit
		lastSeen pgtype.Timestamptz
	)
	err := row.Scan(&unit.ID, &unit.Name, &unit.Location, &unit.CapacityKW, &unit.Status, &lastSeen, &unit.CreatedAt, &unit.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		unit.LastSeenAt = &t
	}
	return &unit, nil
}

var _ RepositoryPort = (*Repository)(nil)
