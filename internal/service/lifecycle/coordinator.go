package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/artifact"
	"billoffice/internal/model"
	"billoffice/internal/render"
)

// DocumentStore is the relational side of the dual-store protocol, satisfied
// by repository.DocumentRepository.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id, ownerID int64) (*model.Document, error)
	SetArtifactFile(ctx context.Context, id, ownerID int64, filename, artifactPath string) error
	ReplaceArtifactFile(ctx context.Context, id, ownerID int64, filename string) error
	AddAttachment(ctx context.Context, id, ownerID int64, filename string) error
	RemoveAttachment(ctx context.Context, id, ownerID int64, filename string) error
	Delete(ctx context.Context, id, ownerID int64) error
}

type UserSource interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type ClientSource interface {
	Get(ctx context.Context, id, ownerID int64) (*model.Client, error)
}

type CategorySource interface {
	Get(ctx context.Context, id, ownerID int64) (*model.Category, error)
}

// Coordinator keeps the record store and the artifact store consistent under
// non-atomic, independently-failing operations. The record's artifact pointer
// must never dangle after a recorded success; an artifact without a record,
// or a record without an artifact, is tolerated.
type Coordinator struct {
	docs       DocumentStore
	artifacts  artifact.Store
	renderer   render.Renderer
	users      UserSource
	clients    ClientSource
	categories CategorySource
	logger     *zap.Logger
	now        func() time.Time
}

func NewCoordinator(
	docs DocumentStore,
	artifacts artifact.Store,
	renderer render.Renderer,
	users UserSource,
	clients ClientSource,
	categories CategorySource,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		docs:       docs,
		artifacts:  artifacts,
		renderer:   renderer,
		users:      users,
		clients:    clients,
		categories: categories,
		logger:     logger,
		now:        time.Now,
	}
}

// generatedCategory returns the storage category for a rendered PDF. Invoice
// PDFs live directly under Invoices/{ownerId}/; expense PDFs get their own
// category segment.
func generatedCategory(kind model.DocumentKind) artifact.Category {
	if kind == model.KindInvoice {
		return artifact.CategoryNone
	}
	return artifact.CategoryGeneratedPDFs
}

// CreateWithRender inserts the record, renders the PDF, uploads it and
// patches the record with the artifact filename.
//
// If rendering or upload fails the record survives without an artifact
// pointer: that orphan is recoverable by regenerating later. If the final
// patch fails the freshly uploaded artifact is deleted so no unreferenced
// success is recorded, and the record again survives pointerless.
func (c *Coordinator) CreateWithRender(ctx context.Context, doc *model.Document) error {
	owner, err := c.users.GetByID(ctx, doc.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve owner: %w", err)
	}

	var client *model.Client
	if doc.ClientID != nil {
		client, err = c.clients.Get(ctx, *doc.ClientID, doc.OwnerID)
		if err != nil {
			return fmt.Errorf("resolve client: %w", err)
		}
	}

	if err := c.docs.Create(ctx, doc); err != nil {
		return err
	}

	lines, err := c.renderLines(ctx, doc)
	if err != nil {
		return err
	}

	pdf, err := c.renderer.Render(doc, lines, owner, client)
	if err != nil {
		c.logger.Error("Render failed, record kept without artifact",
			zap.Int64("document_id", doc.ID),
			zap.Error(err),
		)
		return err
	}

	filename := fmt.Sprintf("%s.pdf", doc.Number)
	category := generatedCategory(doc.Kind)

	path, err := c.artifacts.Upload(ctx, pdf, filename, doc.Kind, doc.OwnerID, "application/pdf", category)
	if err != nil {
		c.logger.Error("Artifact upload failed, record kept without artifact",
			zap.Int64("document_id", doc.ID),
			zap.Error(err),
		)
		return err
	}

	if err := c.docs.SetArtifactFile(ctx, doc.ID, doc.OwnerID, filename, path); err != nil {
		// Compensate: the record never learned about the upload, so the
		// object must go. The record row itself stays.
		if delErr := c.artifacts.Delete(ctx, path); delErr != nil {
			c.logger.Error("Compensation failed: orphaned artifact remains",
				zap.Int64("document_id", doc.ID),
				zap.String("path", path),
				zap.Error(apperr.CompensationFailed("delete uploaded artifact", delErr)),
			)
		}
		return err
	}

	doc.ArtifactFile = filename
	c.logger.Info("Document created with artifact",
		zap.Int64("document_id", doc.ID),
		zap.String("artifact_file", filename),
	)
	return nil
}

func (c *Coordinator) renderLines(ctx context.Context, doc *model.Document) ([]render.Line, error) {
	lines := make([]render.Line, 0, len(doc.Items))
	for _, it := range doc.Items {
		cat, err := c.categories.Get(ctx, it.CategoryID, doc.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("resolve line category: %w", err)
		}
		lines = append(lines, render.Line{
			Label:     cat.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return lines, nil
}

// ReplaceArtifact swaps the document's generated PDF for caller-supplied
// bytes. The new object is uploaded under a fresh timestamp-qualified name,
// the pointer is patched, and only then is the old object deleted
// best-effort. At every observable point the pointer resolves to an existing
// object; the price is an occasionally leaked old object.
func (c *Coordinator) ReplaceArtifact(ctx context.Context, id, ownerID int64, data []byte, origName, contentType string) (string, error) {
	doc, err := c.docs.Get(ctx, id, ownerID)
	if err != nil {
		return "", err
	}

	freshName := c.freshName(origName)
	category := generatedCategory(doc.Kind)

	newPath, err := c.artifacts.Upload(ctx, data, freshName, doc.Kind, ownerID, contentType, category)
	if err != nil {
		return "", err
	}

	if err := c.docs.ReplaceArtifactFile(ctx, id, ownerID, freshName); err != nil {
		if delErr := c.artifacts.Delete(ctx, newPath); delErr != nil {
			c.logger.Error("Compensation failed: orphaned artifact remains",
				zap.Int64("document_id", id),
				zap.String("path", newPath),
				zap.Error(apperr.CompensationFailed("delete uploaded artifact", delErr)),
			)
		}
		// The record still points at the old, still-valid object.
		return "", err
	}

	if doc.ArtifactFile != "" && doc.ArtifactFile != freshName {
		oldPath := artifact.DerivePath(doc.Kind, category, ownerID, doc.ArtifactFile)
		if delErr := c.artifacts.Delete(ctx, oldPath); delErr != nil {
			c.logger.Warn("Old artifact not deleted, leaked object tolerated",
				zap.Int64("document_id", id),
				zap.String("path", oldPath),
				zap.Error(delErr),
			)
		}
	}

	c.logger.Info("Document artifact replaced",
		zap.Int64("document_id", id),
		zap.String("artifact_file", freshName),
	)
	return freshName, nil
}

// AttachDocument uploads a supporting file and appends it to the document's
// attachment list, with the same upload-then-patch-then-compensate protocol
// as ReplaceArtifact. Nothing is deleted on success.
func (c *Coordinator) AttachDocument(ctx context.Context, id, ownerID int64, data []byte, origName, contentType string) (string, error) {
	doc, err := c.docs.Get(ctx, id, ownerID)
	if err != nil {
		return "", err
	}

	freshName := c.freshName(origName)

	newPath, err := c.artifacts.Upload(ctx, data, freshName, doc.Kind, ownerID, contentType, artifact.CategoryUploaded)
	if err != nil {
		return "", err
	}

	if err := c.docs.AddAttachment(ctx, id, ownerID, freshName); err != nil {
		if delErr := c.artifacts.Delete(ctx, newPath); delErr != nil {
			c.logger.Error("Compensation failed: orphaned artifact remains",
				zap.Int64("document_id", id),
				zap.String("path", newPath),
				zap.Error(apperr.CompensationFailed("delete uploaded artifact", delErr)),
			)
		}
		return "", err
	}

	c.logger.Info("Attachment added",
		zap.Int64("document_id", id),
		zap.String("filename", freshName),
	)
	return freshName, nil
}

// RemoveAttachment drops the filename from the record first, then deletes
// the object best-effort.
func (c *Coordinator) RemoveAttachment(ctx context.Context, id, ownerID int64, filename string) error {
	doc, err := c.docs.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}

	found := false
	for _, a := range doc.Attachments {
		if a == filename {
			found = true
			break
		}
	}
	if !found {
		return apperr.NotFound("attachment %s not found on document %d", filename, id)
	}

	if err := c.docs.RemoveAttachment(ctx, id, ownerID, filename); err != nil {
		return err
	}

	path := artifact.DerivePath(doc.Kind, artifact.CategoryUploaded, ownerID, filename)
	if delErr := c.artifacts.Delete(ctx, path); delErr != nil {
		c.logger.Warn("Attachment object not deleted, leaked object tolerated",
			zap.Int64("document_id", id),
			zap.String("path", path),
			zap.Error(delErr),
		)
	}
	return nil
}

// DownloadArtifact returns the document's generated PDF.
func (c *Coordinator) DownloadArtifact(ctx context.Context, id, ownerID int64) (*artifact.Object, string, error) {
	doc, err := c.docs.Get(ctx, id, ownerID)
	if err != nil {
		return nil, "", err
	}
	if doc.ArtifactFile == "" {
		return nil, "", apperr.NotFound("document %d has no artifact", id)
	}

	path := artifact.DerivePath(doc.Kind, generatedCategory(doc.Kind), ownerID, doc.ArtifactFile)
	obj, err := c.artifacts.Download(ctx, path)
	if err != nil {
		return nil, "", err
	}
	return obj, doc.ArtifactFile, nil
}

// DownloadAttachment returns one uploaded attachment by filename.
func (c *Coordinator) DownloadAttachment(ctx context.Context, id, ownerID int64, filename string) (*artifact.Object, error) {
	doc, err := c.docs.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	for _, a := range doc.Attachments {
		if a == filename {
			path := artifact.DerivePath(doc.Kind, artifact.CategoryUploaded, ownerID, filename)
			return c.artifacts.Download(ctx, path)
		}
	}
	return nil, apperr.NotFound("attachment %s not found on document %d", filename, id)
}

// Delete removes the record first (the record is authoritative), then
// disposes of the artifacts best-effort. Blob deletion failures are logged
// and never fail the delete: the remaining objects are disposable residue.
func (c *Coordinator) Delete(ctx context.Context, id, ownerID int64) error {
	doc, err := c.docs.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}

	if err := c.docs.Delete(ctx, id, ownerID); err != nil {
		return err
	}

	var paths []string
	if doc.ArtifactFile != "" {
		paths = append(paths, artifact.DerivePath(doc.Kind, generatedCategory(doc.Kind), ownerID, doc.ArtifactFile))
	}
	for _, a := range doc.Attachments {
		paths = append(paths, artifact.DerivePath(doc.Kind, artifact.CategoryUploaded, ownerID, a))
	}

	for _, path := range paths {
		if delErr := c.artifacts.Delete(ctx, path); delErr != nil {
			c.logger.Warn("Artifact not deleted after record delete, residue tolerated",
				zap.Int64("document_id", id),
				zap.String("path", path),
				zap.Error(delErr),
			)
		}
	}

	return nil
}

// freshName qualifies an upload name with a timestamp and a short random
// suffix so a replace never overwrites the old object in place.
func (c *Coordinator) freshName(origName string) string {
	return fmt.Sprintf("%d_%s_%s", c.now().UnixMilli(), uuid.NewString()[:8], origName)
}
