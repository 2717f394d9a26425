package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
)

type ClientRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewClientRepository(db *pgxpool.Pool, logger *zap.Logger) *ClientRepository {
	return &ClientRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns one client, owner-scoped. A client of another owner is a
// not-found.
func (r *ClientRepository) Get(ctx context.Context, id, ownerID int64) (*model.Client, error) {
	query := `
        SELECT id, owner_id, name, email, address, created_at, updated_at
        FROM clients
        WHERE id = $1 AND owner_id = $2
    `
	var c model.Client
	err := r.db.QueryRow(ctx, query, id, ownerID).Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Email,
		&c.Address,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.FromStore("client not found", err)
	}
	return &c, nil
}

// FindByProjectID returns the clients associated with a project, ordered by
// id so batch runs visit them deterministically.
func (r *ClientRepository) FindByProjectID(ctx context.Context, projectID int64) ([]model.Client, error) {
	query := `
        SELECT c.id, c.owner_id, c.name, c.email, c.address, c.created_at, c.updated_at
        FROM clients c
        JOIN project_clients pc ON pc.client_id = c.id
        WHERE pc.project_id = $1
        ORDER BY c.id ASC
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to query project clients", zap.Error(err))
		return nil, apperr.StoreUnavailable("query project clients", err)
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(
			&c.ID,
			&c.OwnerID,
			&c.Name,
			&c.Email,
			&c.Address,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, apperr.StoreUnavailable("scan client", err)
		}
		clients = append(clients, c)
	}

	return clients, rows.Err()
}
