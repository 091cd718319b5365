package reports

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powerdeck/powerdeck/internal/shared"
)

// RepositoryPort abstracts report persistence for the service.
type RepositoryPort interface {
	List(ctx context.Context) ([]Report, error)
	FindByID(ctx context.Context, id int64) (*Report, error)
	Create(ctx context.Context, report Report) (*Report, error)
	Update(ctx context.Context, report Report) (*Report, error)
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

const reportColumns = `id, title, period_start, period_end, total_kwh, peak_kw, notes, created_by, created_at, updated_at`

// List returns all reports, newest period first.
func (r *Repository) List(ctx context.Context) ([]Report, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY period_start DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

// FindByID loads one report.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Report, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return report, nil
}

// Create inserts a report.
func (r *Repository) Create(ctx context.Context, report Report) (*Report, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO reports (title, period_start, period_end, total_kwh, peak_kw, notes, created_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        RETURNING `+reportColumns,
		report.Title, report.PeriodStart, report.PeriodEnd, report.TotalKWh, report.PeakKW, report.Notes, report.CreatedBy)
	return wrapScan(row)
}

// Update rewrites mutable report fields.
func (r *Repository) Update(ctx context.Context, report Report) (*Report, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE reports
        SET title = $2, total_kwh = $3, peak_kw = $4, notes = $5, updated_at = NOW()
        WHERE id = $1
        RETURNING `+reportColumns,
		report.ID, report.Title, report.TotalKWh, report.PeakKW, report.Notes)
	return wrapScan(row)
}

// Delete removes a report permanently.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func wrapScan(row pgx.Row) (*Report, error) {
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return report, nil
}

func scanReport(row pgx.Row) (*Report, error) {
	var (
		report     Report
		start, end time.Time
	)
	err := row.Scan(&report.ID, &report.Title, &start, &end, &report.TotalKWh, &report.PeakKW, &report.Notes, &report.CreatedBy, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return nil, err
	}
	report.PeriodStart = start
	report.PeriodEnd = end
	return &report, nil
}

var _ RepositoryPort = (*Repository)(nil)
