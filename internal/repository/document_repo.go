package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
	"billoffice/pkg/metrics"
	"billoffice/pkg/outbox"
)

// EventDocumentCreated is the routing key of the created-document event.
const EventDocumentCreated = "document.created"

// DocumentCreatedPayload is the wire shape of the document.created event.
type DocumentCreatedPayload struct {
	DocumentID   int64  `json:"document_id"`
	Kind         string `json:"kind"`
	OwnerID      int64  `json:"owner_id"`
	ClientID     *int64 `json:"client_id,omitempty"`
	ArtifactPath string `json:"artifact_path"`
}

// DocumentPatch carries the fields of an update call. Nil means "leave
// unchanged". Items, when non-nil, replace the full line-item set.
type DocumentPatch struct {
	Subtotal       *float64
	TaxRate        *float64
	Currency       *string
	PaymentTerms   *model.PaymentTermsMode
	AdvanceAmount  *float64
	BalanceDue     *float64
	BalanceDueDate *time.Time
	DueDate        *time.Time
	Status         *model.DocumentStatus
	Reminders      model.ReminderSchedule
	Items          []model.LineItem
}

type DocumentRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
	now        func() time.Time
}

func NewDocumentRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// Create inserts the document header and its line items in one transaction.
// Status, when unset, is derived from the due date. The document's ID and
// computed totals are filled in on success.
func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "documents", time.Since(start)) }()

	if doc.Status == "" {
		doc.Status = model.DeriveStatus("", doc.DueDate, r.now())
	}
	doc.ComputeTotals()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperr.StoreUnavailable("begin create document", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO documents (
            kind, owner_id, project_id, client_id, number,
            subtotal, tax_rate, total, currency,
            payment_terms, advance_amount, balance_due, balance_due_date,
            issue_date, due_date, status, artifact_file, attachments, reminders
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
        RETURNING id, created_at, updated_at
    `
	err = tx.QueryRow(ctx, query,
		doc.Kind,
		doc.OwnerID,
		doc.ProjectID,
		doc.ClientID,
		doc.Number,
		doc.Subtotal,
		doc.TaxRate,
		doc.Total,
		doc.Currency,
		doc.PaymentTerms,
		doc.AdvanceAmount,
		doc.BalanceDue,
		doc.BalanceDueDate,
		doc.IssueDate,
		doc.DueDate,
		doc.Status,
		doc.ArtifactFile,
		doc.Attachments,
		doc.Reminders,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert document", zap.Error(err))
		return apperr.FromStore("insert document", err)
	}

	if err := insertItems(ctx, tx, doc.ID, doc.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.StoreUnavailable("commit create document", err)
	}

	r.logger.Info("Document created",
		zap.Int64("id", doc.ID),
		zap.String("kind", string(doc.Kind)),
		zap.Int64("owner_id", doc.OwnerID),
	)
	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, docID int64, items []model.LineItem) error {
	query := `
        INSERT INTO line_items (document_id, category_id, quantity, unit_price, position)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	for i := range items {
		items[i].DocumentID = docID
		items[i].Position = i
		err := tx.QueryRow(ctx, query,
			docID,
			items[i].CategoryID,
			items[i].Quantity,
			items[i].UnitPrice,
			i,
		).Scan(&items[i].ID)
		if err != nil {
			return apperr.FromStore("insert line item", err)
		}
	}
	return nil
}

// Get returns the document with its line items. A document belonging to a
// different owner is reported as not found, never as forbidden.
func (r *DocumentRepository) Get(ctx context.Context, id, ownerID int64) (*model.Document, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "documents", time.Since(start)) }()

	query := `
        SELECT id, kind, owner_id, project_id, client_id, number,
               subtotal, tax_rate, total, currency,
               payment_terms, advance_amount, balance_due, balance_due_date,
               issue_date, due_date, status, artifact_file, attachments, reminders,
               created_at, updated_at
        FROM documents
        WHERE id = $1 AND owner_id = $2
    `
	doc, err := scanDocument(r.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		return nil, apperr.FromStore("document not found", err)
	}

	items, err := loadItems(ctx, r.db, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Items = items
	return doc, nil
}

// rowQuerier is satisfied by both the pool and an open transaction.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q rowQuerier, docID int64) ([]model.LineItem, error) {
	query := `
        SELECT id, document_id, category_id, quantity, unit_price, position
        FROM line_items
        WHERE document_id = $1
        ORDER BY position ASC
    `
	rows, err := q.Query(ctx, query, docID)
	if err != nil {
		return nil, apperr.StoreUnavailable("load line items", err)
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.CategoryID, &it.Quantity, &it.UnitPrice, &it.Position); err != nil {
			return nil, apperr.StoreUnavailable("scan line item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListByOwner returns all of the owner's documents of one kind, newest first.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID int64, kind model.DocumentKind) ([]model.Document, error) {
	return r.list(ctx, `
        SELECT id, kind, owner_id, project_id, client_id, number,
               subtotal, tax_rate, total, currency,
               payment_terms, advance_amount, balance_due, balance_due_date,
               issue_date, due_date, status, artifact_file, attachments, reminders,
               created_at, updated_at
        FROM documents
        WHERE owner_id = $1 AND kind = $2
        ORDER BY created_at DESC
    `, ownerID, kind)
}

// ListByClient returns the owner's documents addressed to one client.
func (r *DocumentRepository) ListByClient(ctx context.Context, ownerID, clientID int64) ([]model.Document, error) {
	return r.list(ctx, `
        SELECT id, kind, owner_id, project_id, client_id, number,
               subtotal, tax_rate, total, currency,
               payment_terms, advance_amount, balance_due, balance_due_date,
               issue_date, due_date, status, artifact_file, attachments, reminders,
               created_at, updated_at
        FROM documents
        WHERE owner_id = $1 AND client_id = $2
        ORDER BY created_at DESC
    `, ownerID, clientID)
}

func (r *DocumentRepository) list(ctx context.Context, query string, args ...any) ([]model.Document, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable("list documents", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable("scan document", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	err := row.Scan(
		&doc.ID,
		&doc.Kind,
		&doc.OwnerID,
		&doc.ProjectID,
		&doc.ClientID,
		&doc.Number,
		&doc.Subtotal,
		&doc.TaxRate,
		&doc.Total,
		&doc.Currency,
		&doc.PaymentTerms,
		&doc.AdvanceAmount,
		&doc.BalanceDue,
		&doc.BalanceDueDate,
		&doc.IssueDate,
		&doc.DueDate,
		&doc.Status,
		&doc.ArtifactFile,
		&doc.Attachments,
		&doc.Reminders,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Update applies a patch inside one transaction. When the due date changes
// and the patch does not set a status explicitly, the status is re-derived;
// paid is sticky and survives due-date edits. An explicit transition off
// paid cascades deletion of the document's payment records.
func (r *DocumentRepository) Update(ctx context.Context, id, ownerID int64, patch DocumentPatch) (*model.Document, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "documents", time.Since(start)) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperr.StoreUnavailable("begin update document", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanDocument(tx.QueryRow(ctx, `
        SELECT id, kind, owner_id, project_id, client_id, number,
               subtotal, tax_rate, total, currency,
               payment_terms, advance_amount, balance_due, balance_due_date,
               issue_date, due_date, status, artifact_file, attachments, reminders,
               created_at, updated_at
        FROM documents
        WHERE id = $1 AND owner_id = $2
        FOR UPDATE
    `, id, ownerID))
	if err != nil {
		return nil, apperr.FromStore("document not found", err)
	}

	// Items always ride along in the response, patched or not.
	current.Items, err = loadItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	applyPatch(&next, patch)

	if patch.Status != nil {
		if !model.ValidTransition(current.Status, *patch.Status) {
			return nil, apperr.Validation("illegal status transition %s -> %s", current.Status, *patch.Status)
		}
		next.Status = *patch.Status
	} else if patch.DueDate != nil {
		next.Status = model.DeriveStatus(current.Status, next.DueDate, r.now())
	}

	// Leaving paid invalidates recorded payments; drop them in the same
	// transaction rather than leaving them dangling.
	if current.Status == model.StatusPaid && next.Status != model.StatusPaid {
		if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE document_id = $1`, id); err != nil {
			return nil, apperr.FromStore("cascade delete payments", err)
		}
		r.logger.Info("Payments cascade-deleted on unpaid transition",
			zap.Int64("document_id", id),
		)
	}

	if patch.Items != nil {
		next.Items = patch.Items
		next.ComputeTotals()
		if _, err := tx.Exec(ctx, `DELETE FROM line_items WHERE document_id = $1`, id); err != nil {
			return nil, apperr.FromStore("replace line items", err)
		}
		if err := insertItems(ctx, tx, id, next.Items); err != nil {
			return nil, err
		}
	} else if patch.Subtotal != nil || patch.TaxRate != nil {
		next.Total = next.Subtotal + next.Subtotal*next.TaxRate/100
	}

	err = tx.QueryRow(ctx, `
        UPDATE documents
        SET subtotal = $1, tax_rate = $2, total = $3, currency = $4,
            payment_terms = $5, advance_amount = $6, balance_due = $7,
            balance_due_date = $8, due_date = $9, status = $10,
            reminders = $11, updated_at = NOW()
        WHERE id = $12 AND owner_id = $13
        RETURNING updated_at
    `,
		next.Subtotal,
		next.TaxRate,
		next.Total,
		next.Currency,
		next.PaymentTerms,
		next.AdvanceAmount,
		next.BalanceDue,
		next.BalanceDueDate,
		next.DueDate,
		next.Status,
		next.Reminders,
		id,
		ownerID,
	).Scan(&next.UpdatedAt)
	if err != nil {
		return nil, apperr.FromStore("update document", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.StoreUnavailable("commit update document", err)
	}

	return &next, nil
}

func applyPatch(doc *model.Document, patch DocumentPatch) {
	if patch.Subtotal != nil {
		doc.Subtotal = *patch.Subtotal
	}
	if patch.TaxRate != nil {
		doc.TaxRate = *patch.TaxRate
	}
	if patch.Currency != nil {
		doc.Currency = *patch.Currency
	}
	if patch.PaymentTerms != nil {
		doc.PaymentTerms = *patch.PaymentTerms
	}
	if patch.AdvanceAmount != nil {
		doc.AdvanceAmount = patch.AdvanceAmount
	}
	if patch.BalanceDue != nil {
		doc.BalanceDue = patch.BalanceDue
	}
	if patch.BalanceDueDate != nil {
		doc.BalanceDueDate = patch.BalanceDueDate
	}
	if patch.DueDate != nil {
		doc.DueDate = *patch.DueDate
	}
	if patch.Reminders != nil {
		doc.Reminders = patch.Reminders
	}
}

// SetArtifactFile points the document at a newly stored artifact and, in the
// same transaction, records a document.created event for the mail pipeline.
func (r *DocumentRepository) SetArtifactFile(ctx context.Context, id, ownerID int64, filename, artifactPath string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "documents", time.Since(start)) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperr.StoreUnavailable("begin set artifact", err)
	}
	defer tx.Rollback(ctx)

	var kind model.DocumentKind
	var clientID *int64
	err = tx.QueryRow(ctx, `
        UPDATE documents
        SET artifact_file = $1, updated_at = NOW()
        WHERE id = $2 AND owner_id = $3
        RETURNING kind, client_id
    `, filename, id, ownerID).Scan(&kind, &clientID)
	if err != nil {
		return apperr.FromStore("document not found", err)
	}

	payload := DocumentCreatedPayload{
		DocumentID:   id,
		Kind:         string(kind),
		OwnerID:      ownerID,
		ClientID:     clientID,
		ArtifactPath: artifactPath,
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "document", &id, EventDocumentCreated, payload); err != nil {
		return apperr.StoreUnavailable("record document.created event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.StoreUnavailable("commit set artifact", err)
	}

	r.logger.Info("Document artifact set",
		zap.Int64("document_id", id),
		zap.String("artifact_file", filename),
	)
	return nil
}

// ReplaceArtifactFile swaps the artifact pointer without emitting an event.
// Used by the attach/replace protocol where the document already exists.
func (r *DocumentRepository) ReplaceArtifactFile(ctx context.Context, id, ownerID int64, filename string) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE documents
        SET artifact_file = $1, updated_at = NOW()
        WHERE id = $2 AND owner_id = $3
    `, filename, id, ownerID)
	if err != nil {
		return apperr.FromStore("replace artifact pointer", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document %d not found", id)
	}
	return nil
}

// AddAttachment appends an uploaded filename to the document's attachment
// list.
func (r *DocumentRepository) AddAttachment(ctx context.Context, id, ownerID int64, filename string) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE documents
        SET attachments = array_append(attachments, $1), updated_at = NOW()
        WHERE id = $2 AND owner_id = $3
    `, filename, id, ownerID)
	if err != nil {
		return apperr.FromStore("add attachment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document %d not found", id)
	}
	return nil
}

// RemoveAttachment drops a filename from the attachment list.
func (r *DocumentRepository) RemoveAttachment(ctx context.Context, id, ownerID int64, filename string) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE documents
        SET attachments = array_remove(attachments, $1), updated_at = NOW()
        WHERE id = $2 AND owner_id = $3
    `, filename, id, ownerID)
	if err != nil {
		return apperr.FromStore("remove attachment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document %d not found", id)
	}
	return nil
}

// Delete removes the document, its line items and payments in one
// transaction. The caller is responsible for disposing of artifacts.
func (r *DocumentRepository) Delete(ctx context.Context, id, ownerID int64) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("delete", "documents", time.Since(start)) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperr.StoreUnavailable("begin delete document", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE document_id = $1`, id); err != nil {
		return apperr.FromStore("delete payments", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM line_items WHERE document_id = $1`, id); err != nil {
		return apperr.FromStore("delete line items", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return apperr.FromStore("delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document %d not found", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.StoreUnavailable("commit delete document", err)
	}

	r.logger.Info("Document deleted", zap.Int64("id", id), zap.Int64("owner_id", ownerID))
	return nil
}
