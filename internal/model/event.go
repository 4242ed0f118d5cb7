package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of conversation lifecycle event.
type EventType string

const (
	EventTypeCreated    EventType = "created"
	EventTypeUpdated    EventType = "updated"
	EventTypeArchived   EventType = "archived"
	EventTypeUnarchived EventType = "unarchived"
	EventTypeDeleted    EventType = "deleted"
)

// ConversationEvent is published after a conversation write commits.
type ConversationEvent struct {
	ID             string    `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	Type           EventType `json:"type"`
	Status         Status    `json:"status"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
	Fields         []string  `json:"fields,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
