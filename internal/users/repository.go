package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powerdeck/powerdeck/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, email, name, passwordHash, role string) (*User, error)
	UpdateRole(ctx context.Context, id int64, role string) (*User, error)
	SoftDelete(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, is_deleted, created_at, updated_at`

// FindByID returns one user including soft-deleted records, so callers can
// distinguish a deleted account from a missing one.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// List returns all non-deleted users.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE NOT is_deleted ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// Create inserts an account. Email conflicts map to ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, email, name, passwordHash, role string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO users (email, name, password_hash, role, is_deleted, created_at, updated_at)
        VALUES ($1, $2, $3, $4, FALSE, NOW(), NOW())
        RETURNING `+userColumns, email, name, passwordHash, role)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// UpdateRole changes the persisted role and returns the updated record.
func (r *Repository) UpdateRole(ctx context.Context, id int64, role string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE users SET role = $2, updated_at = NOW()
        WHERE id = $1 AND NOT is_deleted
        RETURNING `+userColumns, id, role)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// SoftDelete marks an account as deleted without removing the row.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE users SET is_deleted = TRUE, updated_at = NOW()
        WHERE id = $1 AND NOT is_deleted
    `, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.IsDeleted, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

var _ RepositoryPort = (*Repository)(nil)
