package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
	"billoffice/pkg/metrics"
)

type MilestoneRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		logger: logger,
	}
}

// FindDuePending returns milestones due on the given date that have not been
// processed yet, ordered by id for a reproducible processing order. Legacy
// rows with a NULL status count as pending.
func (r *MilestoneRepository) FindDuePending(ctx context.Context, date time.Time) ([]model.Milestone, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "milestones", time.Since(start)) }()

	query := `
        SELECT m.id, m.payment_term_id, a.project_id, p.owner_id, a.service_type, a.currency,
               m.date, m.amount, m.description,
               COALESCE(m.status, 'pending'),
               m.created_at, m.updated_at
        FROM milestones m
        JOIN payment_terms pt ON pt.id = m.payment_term_id
        JOIN agreements a ON a.id = pt.agreement_id
        JOIN projects p ON p.id = a.project_id
        WHERE m.date = $1::date
          AND (m.status = 'pending' OR m.status IS NULL)
        ORDER BY m.id ASC
    `
	rows, err := r.db.Query(ctx, query, date)
	if err != nil {
		r.logger.Error("Failed to query due milestones", zap.Error(err))
		return nil, apperr.StoreUnavailable("query due milestones", err)
	}
	defer rows.Close()

	var milestones []model.Milestone
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(
			&m.ID,
			&m.PaymentTermID,
			&m.ProjectID,
			&m.OwnerID,
			&m.ServiceType,
			&m.Currency,
			&m.Date,
			&m.Amount,
			&m.Description,
			&m.Status,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, apperr.StoreUnavailable("scan milestone", err)
		}
		milestones = append(milestones, m)
	}

	return milestones, rows.Err()
}

// MarkCreated advances the milestone to created. The transition is one-way:
// a milestone is attempted at most once regardless of per-client outcomes.
func (r *MilestoneRepository) MarkCreated(ctx context.Context, id int64) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "milestones", time.Since(start)) }()

	tag, err := r.db.Exec(ctx, `
        UPDATE milestones
        SET status = 'created', updated_at = NOW()
        WHERE id = $1
    `, id)
	if err != nil {
		r.logger.Error("Failed to mark milestone created",
			zap.Int64("id", id),
			zap.Error(err),
		)
		return apperr.StoreUnavailable("mark milestone created", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("milestone %d not found", id)
	}

	r.logger.Info("Milestone marked created", zap.Int64("id", id))
	return nil
}
