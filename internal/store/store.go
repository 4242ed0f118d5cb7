// Package store persists conversations. It applies the changes it is given
// and owns no lifecycle rules.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

// ErrNotFound is returned when a conversation is absent, hidden by the
// deleted filter, or owned by someone else.
var ErrNotFound = errors.New("conversation not found")

// ErrStale is returned by Update and SoftDelete when the stored status no
// longer matches the status of the conversation passed in.
var ErrStale = errors.New("conversation changed since it was read")

// Clock supplies server timestamps.
type Clock func() time.Time

// ListParams selects a page of an owner's conversations.
// A nil Status excludes deleted conversations.
type ListParams struct {
	Page   int
	Limit  int
	Status *model.Status
}

// Offset returns the number of rows skipped before the page. It saturates
// at math.MaxInt instead of overflowing.
func (p ListParams) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// Store is the persistence gateway for conversations. Every write commits
// immediately. Update and SoftDelete never mutate the conversation passed in;
// they return the refreshed record instead. Both write only while the stored
// status still equals conv.Status and return ErrStale otherwise.
type Store interface {
	Create(ctx context.Context, ownerID uuid.UUID, title *string, metadata map[string]any) (*model.Conversation, error)
	GetByID(ctx context.Context, ownerID, id uuid.UUID, includeDeleted bool) (*model.Conversation, error)
	List(ctx context.Context, ownerID uuid.UUID, params ListParams) ([]*model.Conversation, int, error)
	Update(ctx context.Context, conv *model.Conversation, changes model.Changes) (*model.Conversation, error)
	SoftDelete(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
	Ping(ctx context.Context) error
}

func newID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
