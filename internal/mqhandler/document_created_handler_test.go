package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/repository"
)

type stubMailer struct {
	err    error
	calls  int
	lastID int64
}

func (s *stubMailer) SendDocument(_ context.Context, p repository.DocumentCreatedPayload) error {
	s.calls++
	s.lastID = p.DocumentID
	return s.err
}

type stubRetries struct {
	count      int64
	countErr   error
	increments int
	resets     int
}

func (s *stubRetries) IncrementAndGet(_ context.Context, _ string) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.increments++
	s.count++
	return s.count, nil
}

func (s *stubRetries) Reset(_ context.Context, _ string) error {
	s.resets++
	s.count = 0
	return nil
}

type stubDLQ struct {
	err        error
	calls      int
	routingKey string
	payload    []byte
	origErr    string
}

func (s *stubDLQ) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	s.calls++
	s.routingKey = routingKey
	s.payload = payload
	s.origErr = originalError
	return s.err
}

func newTestHandler(m *stubMailer) (*DocumentCreatedHandler, *stubRetries, *stubDLQ) {
	retries := &stubRetries{}
	dlq := &stubDLQ{}
	return NewDocumentCreatedHandler(m, retries, dlq, zap.NewNop()), retries, dlq
}

func rawPayload(t *testing.T) json.RawMessage {
	t.Helper()
	clientID := int64(20)
	raw, err := json.Marshal(repository.DocumentCreatedPayload{
		DocumentID:   7,
		Kind:         "Invoices",
		OwnerID:      10,
		ClientID:     &clientID,
		ArtifactPath: "Invoices/10/INV-001.pdf",
	})
	require.NoError(t, err)
	return raw
}

func TestHandleDocumentCreated(t *testing.T) {
	m := &stubMailer{}
	h, retries, dlq := newTestHandler(m)

	require.NoError(t, h.HandleDocumentCreated(context.Background(), rawPayload(t)))
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, int64(7), m.lastID)
	assert.Equal(t, 1, retries.resets, "success clears the attempt counter")
	assert.Zero(t, dlq.calls)
}

func TestHandleDocumentCreatedMalformedPayloadDropped(t *testing.T) {
	m := &stubMailer{}
	h, _, _ := newTestHandler(m)

	assert.NoError(t, h.HandleDocumentCreated(context.Background(), json.RawMessage(`{not json`)))
	assert.Zero(t, m.calls, "a malformed payload is acked without a send attempt")
}

func TestHandleDocumentCreatedNotFoundAcked(t *testing.T) {
	m := &stubMailer{err: apperr.NotFound("client gone")}
	h, retries, dlq := newTestHandler(m)

	assert.NoError(t, h.HandleDocumentCreated(context.Background(), rawPayload(t)),
		"permanently missing data is not worth a redelivery")
	assert.Equal(t, 1, retries.resets)
	assert.Zero(t, dlq.calls)
}

func TestHandleDocumentCreatedTransientErrorPropagates(t *testing.T) {
	m := &stubMailer{err: apperr.StoreUnavailable("smtp", errors.New("conn refused"))}
	h, retries, dlq := newTestHandler(m)

	assert.Error(t, h.HandleDocumentCreated(context.Background(), rawPayload(t)))
	assert.Equal(t, 1, retries.increments)
	assert.Zero(t, dlq.calls, "first failures redeliver instead of dead-lettering")
}

func TestHandleDocumentCreatedExhaustedRetriesDeadLettered(t *testing.T) {
	m := &stubMailer{err: apperr.StoreUnavailable("smtp", errors.New("conn refused"))}
	h, retries, dlq := newTestHandler(m)
	retries.count = maxMailAttempts - 1

	raw := rawPayload(t)
	assert.NoError(t, h.HandleDocumentCreated(context.Background(), raw),
		"an exhausted message is acked after parking")
	require.Equal(t, 1, dlq.calls)
	assert.Equal(t, "document.created", dlq.routingKey)
	assert.Equal(t, []byte(raw), dlq.payload)
	assert.Contains(t, dlq.origErr, "conn refused")
	assert.Equal(t, 1, retries.resets, "a parked message starts fresh if replayed")
}

func TestHandleDocumentCreatedDLQPublishFailureKeepsRedelivering(t *testing.T) {
	m := &stubMailer{err: apperr.StoreUnavailable("smtp", errors.New("conn refused"))}
	h, retries, dlq := newTestHandler(m)
	retries.count = maxMailAttempts - 1
	dlq.err = errors.New("broker down")

	assert.Error(t, h.HandleDocumentCreated(context.Background(), rawPayload(t)),
		"the message stays on the queue when parking fails")
	assert.Zero(t, retries.resets)
}

func TestHandleDocumentCreatedCounterUnavailableStillRedelivers(t *testing.T) {
	m := &stubMailer{err: apperr.StoreUnavailable("smtp", errors.New("conn refused"))}
	h, retries, dlq := newTestHandler(m)
	retries.countErr = errors.New("redis down")

	assert.Error(t, h.HandleDocumentCreated(context.Background(), rawPayload(t)))
	assert.Zero(t, dlq.calls)
}
