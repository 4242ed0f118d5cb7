package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

// EventPublisher delivers lifecycle events after a write commits.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}

// NopPublisher drops every event. It is used when event delivery is disabled.
type NopPublisher struct{}

// PublishEvent does nothing.
func (NopPublisher) PublishEvent(context.Context, *model.ConversationEvent) (uint64, error) {
	return 0, nil
}

func newEvent(eventType model.EventType, conv *model.Conversation, previous model.Status, fields []string, now time.Time) *model.ConversationEvent {
	return &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		OwnerID:        conv.OwnerID,
		Type:           eventType,
		Status:         conv.Status,
		PreviousStatus: previous,
		Fields:         fields,
		CreatedAt:      now,
	}
}

// eventTypeFor names the event for a committed update.
func eventTypeFor(previous, current model.Status) model.EventType {
	if previous == current {
		return model.EventTypeUpdated
	}
	switch current {
	case model.StatusArchived:
		return model.EventTypeArchived
	case model.StatusDeleted:
		return model.EventTypeDeleted
	default:
		return model.EventTypeUnarchived
	}
}

// publish is best effort: the write has already committed.
func (s *ConversationService) publish(ctx context.Context, event *model.ConversationEvent) {
	seq, err := s.events.PublishEvent(ctx, event)
	if err != nil {
		s.logger.Warn("failed to publish conversation event",
			zap.String("conversation_id", event.ConversationID.String()),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("conversation event published",
		zap.String("conversation_id", event.ConversationID.String()),
		zap.String("type", string(event.Type)),
		zap.Uint64("sequence", seq),
	)
}

func changedFields(changes model.Changes) []string {
	var fields []string
	if changes.Title.IsSet() {
		fields = append(fields, "title")
	}
	if changes.Metadata.IsSet() {
		fields = append(fields, "metadata")
	}
	if changes.Status.IsSet() {
		fields = append(fields, "status")
	}
	return fields
}
