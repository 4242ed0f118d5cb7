// Package model defines data structures for the conversation service.
package model

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusActive, StatusArchived, StatusDeleted}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// ParseStatus converts a literal into a Status.
func ParseStatus(v string) (Status, bool) {
	s := Status(v)
	return s, s.Valid()
}

// Conversation represents a conversation owned by a single user.
type Conversation struct {
	ID         uuid.UUID      `json:"id"`
	OwnerID    uuid.UUID      `json:"owner_id"`
	Title      *string        `json:"title"`
	Status     Status         `json:"status"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ArchivedAt *time.Time     `json:"archived_at"`
	DeletedAt  *time.Time     `json:"deleted_at"`
}

// MarkDeleted moves the conversation to the deleted state.
// Legality of the transition is checked by the lifecycle engine, not here.
func (c *Conversation) MarkDeleted(now time.Time) {
	c.Status = StatusDeleted
	c.DeletedAt = &now
}

// IsDeleted reports whether the conversation reached its terminal state.
func (c *Conversation) IsDeleted() bool {
	return c.Status == StatusDeleted
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Title = clonePtr(c.Title)
	out.ArchivedAt = clonePtr(c.ArchivedAt)
	out.DeletedAt = clonePtr(c.DeletedAt)
	out.Metadata = CloneMetadata(c.Metadata)
	return &out
}

// CloneMetadata copies a metadata document. Nested values are shared.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title    *string        `json:"title"`
	Metadata map[string]any `json:"metadata"`
}

// UpdateConversationRequest is a partial update. Keys missing from the
// document stay absent; keys sent as null are applied as cleared values.
type UpdateConversationRequest struct {
	Title    Optional[*string]        `json:"title"`
	Status   Optional[*string]        `json:"status"`
	Metadata Optional[map[string]any] `json:"metadata"`
}

// Pagination describes the position of a page within a listing.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Data       []*Conversation `json:"data"`
	Pagination Pagination      `json:"pagination"`
}
