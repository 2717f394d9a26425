package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
)

// Payment records money received against a document.
type Payment struct {
	ID         int64
	DocumentID int64
	Amount     float64
	Method     string
	Reference  string
	PaidAt     time.Time
	CreatedAt  time.Time
}

type PaymentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPaymentRepository(db *pgxpool.Pool, logger *zap.Logger) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *Payment) error {
	query := `
        INSERT INTO payments (document_id, amount, method, reference, paid_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query,
		p.DocumentID,
		p.Amount,
		p.Method,
		p.Reference,
		p.PaidAt,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return apperr.FromStore("insert payment", err)
	}
	return nil
}

func (r *PaymentRepository) ListByDocument(ctx context.Context, documentID int64) ([]Payment, error) {
	query := `
        SELECT id, document_id, amount, method, reference, paid_at, created_at
        FROM payments
        WHERE document_id = $1
        ORDER BY paid_at ASC
    `
	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, apperr.StoreUnavailable("list payments", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, apperr.StoreUnavailable("scan payment", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
