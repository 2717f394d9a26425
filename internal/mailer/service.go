package mailer

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"billoffice/internal/artifact"
	"billoffice/internal/model"
	"billoffice/internal/repository"
	"billoffice/pkg/metrics"
)

type clientSource interface {
	Get(ctx context.Context, id, ownerID int64) (*model.Client, error)
}

// Service mails a freshly generated document to its client. It is driven by
// document.created events; a document without a client is skipped, not an
// error.
type Service struct {
	clients   clientSource
	artifacts artifact.Store
	sender    Sender
	logger    *zap.Logger
}

func NewService(clients clientSource, artifacts artifact.Store, sender Sender, logger *zap.Logger) *Service {
	return &Service{
		clients:   clients,
		artifacts: artifacts,
		sender:    sender,
		logger:    logger,
	}
}

// SendDocument downloads the document's artifact and emails it.
func (s *Service) SendDocument(ctx context.Context, payload repository.DocumentCreatedPayload) error {
	if payload.ClientID == nil {
		s.logger.Info("Document has no client, nothing to mail",
			zap.Int64("document_id", payload.DocumentID),
		)
		return nil
	}

	client, err := s.clients.Get(ctx, *payload.ClientID, payload.OwnerID)
	if err != nil {
		metrics.IncrementDocumentMailed("failed")
		return fmt.Errorf("resolve client: %w", err)
	}
	if client.Email == "" {
		s.logger.Warn("Client has no email address, skipping delivery",
			zap.Int64("document_id", payload.DocumentID),
			zap.Int64("client_id", client.ID),
		)
		return nil
	}

	obj, err := s.artifacts.Download(ctx, payload.ArtifactPath)
	if err != nil {
		metrics.IncrementDocumentMailed("failed")
		return fmt.Errorf("download artifact: %w", err)
	}

	subject := "Your invoice"
	if payload.Kind == string(model.KindExpense) {
		subject = "Your expense document"
	}
	body := fmt.Sprintf("Hello %s,\n\nplease find the attached document.\n", client.Name)
	attachmentName := path.Base(payload.ArtifactPath)

	if err := s.sender.Send(client.Email, subject, body, attachmentName, obj.Data, obj.ContentType); err != nil {
		metrics.IncrementDocumentMailed("failed")
		return err
	}

	metrics.IncrementDocumentMailed("success")
	s.logger.Info("Document mailed",
		zap.Int64("document_id", payload.DocumentID),
		zap.Int64("client_id", client.ID),
	)
	return nil
}
