package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examroom/internal/model"
)

// UserRepository mirrors identity-provider profiles locally.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert creates the profile or refreshes its name and role.
func (r *UserRepository) Upsert(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, display_name, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET display_name = EXCLUDED.display_name, role = EXCLUDED.role, updated_at = NOW()
		 RETURNING created_at, updated_at`,
		u.ID, u.DisplayName, u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return translate(err)
}

// GetByID retrieves a profile by identity subject.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, role, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}
