package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	query := `
        INSERT INTO users (email, password_hash, company_name, address, logo)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		u.Email,
		u.PasswordHash,
		u.CompanyName,
		u.Address,
		u.Logo,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return apperr.FromStore("create user", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx, `
        SELECT id, email, password_hash, company_name, address, logo, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CompanyName, &u.Address, &u.Logo, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, apperr.FromStore("user not found", err)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx, `
        SELECT id, email, password_hash, company_name, address, logo, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CompanyName, &u.Address, &u.Logo, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, apperr.FromStore("user not found", err)
	}
	return &u, nil
}
