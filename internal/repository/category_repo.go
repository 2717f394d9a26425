package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
)

type CategoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCategoryRepository(db *pgxpool.Pool, logger *zap.Logger) *CategoryRepository {
	return &CategoryRepository{
		db:     db,
		logger: logger,
	}
}

// ResolveOrCreate finds the owner's category by case-insensitive name match,
// creating it when absent. The match prevents near-duplicate categories that
// differ only in casing.
func (r *CategoryRepository) ResolveOrCreate(ctx context.Context, ownerID int64, name string) (*model.Category, error) {
	var c model.Category
	err := r.db.QueryRow(ctx, `
        SELECT id, owner_id, name
        FROM categories
        WHERE owner_id = $1 AND LOWER(name) = LOWER($2)
    `, ownerID, name).Scan(&c.ID, &c.OwnerID, &c.Name)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.StoreUnavailable("resolve category", err)
	}

	err = r.db.QueryRow(ctx, `
        INSERT INTO categories (owner_id, name)
        VALUES ($1, $2)
        RETURNING id, owner_id, name
    `, ownerID, name).Scan(&c.ID, &c.OwnerID, &c.Name)
	if err != nil {
		return nil, apperr.FromStore("create category", err)
	}

	r.logger.Info("Category created",
		zap.Int64("owner_id", ownerID),
		zap.String("name", name),
	)
	return &c, nil
}

// Get returns one category, owner-scoped.
func (r *CategoryRepository) Get(ctx context.Context, id, ownerID int64) (*model.Category, error) {
	var c model.Category
	err := r.db.QueryRow(ctx, `
        SELECT id, owner_id, name
        FROM categories
        WHERE id = $1 AND owner_id = $2
    `, id, ownerID).Scan(&c.ID, &c.OwnerID, &c.Name)
	if err != nil {
		return nil, apperr.FromStore("category not found", err)
	}
	return &c, nil
}
