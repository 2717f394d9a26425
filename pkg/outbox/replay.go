package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// EventStore is the slice of Repository the replay service needs.
type EventStore interface {
	GetEventByID(ctx context.Context, eventID int64) (*Event, error)
	GetFailedEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
}

// EventPublisher is satisfied by mq.Publisher.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// ReplayService republishes outbox events that were parked as failed after
// exhausting their dispatcher retries.
type ReplayService struct {
	store      EventStore
	publisher  EventPublisher
	logger     *zap.Logger
	maxRetries int
}

func NewReplayService(store EventStore, publisher EventPublisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
	}
}

// ReplayEvent republishes one event by id and updates its status.
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	var payload interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := s.publisher.Publish(event.RoutingKey, payload); err != nil {
		if markErr := s.store.MarkAsFailed(ctx, eventID, s.maxRetries); markErr != nil {
			return fmt.Errorf("failed to publish and mark as failed: %w (mark error: %v)", err, markErr)
		}
		return fmt.Errorf("failed to publish: %w", err)
	}

	if err := s.store.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark as sent: %w", err)
	}

	s.logger.Info("Replayed outbox event",
		zap.Int64("event_id", eventID),
		zap.String("routing_key", event.RoutingKey),
	)

	return nil
}

// ReplayFailedEvents replays up to limit parked events and returns how many
// were republished. One bad event does not stop the rest.
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.store.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	successCount := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Error("Failed to replay event",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		successCount++
	}

	return successCount, nil
}
