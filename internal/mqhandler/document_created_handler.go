package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/repository"
	"billoffice/internal/util"
	"billoffice/pkg/metrics"
)

// maxMailAttempts bounds broker redeliveries before a message is parked.
const maxMailAttempts = 5

// DocumentMailer delivers a generated document, satisfied by mailer.Service.
type DocumentMailer interface {
	SendDocument(ctx context.Context, payload repository.DocumentCreatedPayload) error
}

// RetryTracker counts delivery attempts per message, satisfied by util.RetryCounter.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetterer parks exhausted messages, satisfied by mq.Publisher.
type DeadLetterer interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

type DocumentCreatedHandler struct {
	mailer  DocumentMailer
	retries RetryTracker
	dlq     DeadLetterer
	logger  *zap.Logger
}

func NewDocumentCreatedHandler(m DocumentMailer, retries RetryTracker, dlq DeadLetterer, logger *zap.Logger) *DocumentCreatedHandler {
	return &DocumentCreatedHandler{
		mailer:  m,
		retries: retries,
		dlq:     dlq,
		logger:  logger,
	}
}

// HandleDocumentCreated mails the generated document to the client. A
// permanently missing client or artifact is acked, not retried; transient
// failures are returned so the broker redelivers, until the attempt count
// reaches maxMailAttempts and the message is parked on the DLQ.
func (h *DocumentCreatedHandler) HandleDocumentCreated(ctx context.Context, raw json.RawMessage) error {
	var p repository.DocumentCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal document created payload", zap.Error(err))
		// Malformed payloads never become parseable; drop them.
		return nil
	}

	h.logger.Info("Mailing document",
		zap.Int64("document_id", p.DocumentID),
		zap.String("artifact_path", p.ArtifactPath),
	)

	retryKey := util.FormatRetryKey("mailer", p.DocumentID)

	err := h.mailer.SendDocument(ctx, p)
	if err == nil {
		_ = h.retries.Reset(ctx, retryKey)
		return nil
	}

	if apperr.IsNotFound(err) {
		h.logger.Warn("Document mail skipped, referenced data gone",
			zap.Int64("document_id", p.DocumentID),
			zap.Error(err),
		)
		_ = h.retries.Reset(ctx, retryKey)
		return nil
	}

	attempts, cntErr := h.retries.IncrementAndGet(ctx, retryKey)
	if cntErr != nil {
		h.logger.Error("Failed to track mail retry count",
			zap.Int64("document_id", p.DocumentID),
			zap.Error(cntErr),
		)
		return err
	}

	if attempts >= maxMailAttempts {
		if dlqErr := h.dlq.PublishToDLQ(repository.EventDocumentCreated, raw, err.Error()); dlqErr != nil {
			h.logger.Error("Failed to dead-letter document mail",
				zap.Int64("document_id", p.DocumentID),
				zap.Error(dlqErr),
			)
			return err
		}
		h.logger.Error("Document mail exhausted retries, dead-lettered",
			zap.Int64("document_id", p.DocumentID),
			zap.Int64("attempts", attempts),
			zap.Error(err),
		)
		metrics.IncrementDeadLettered(repository.EventDocumentCreated)
		_ = h.retries.Reset(ctx, retryKey)
		return nil
	}

	h.logger.Error("Failed to mail document",
		zap.Int64("document_id", p.DocumentID),
		zap.Int64("attempt", attempts),
		zap.Error(err),
	)
	return err
}
