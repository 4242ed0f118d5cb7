package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/conversations-api/internal/model"
	"github.com/capitalize-ai/conversations-api/pkg/metrics"
)

// Instrumented records the latency and outcome of every call to the
// wrapped store.
type Instrumented struct {
	next Store
}

// NewInstrumented wraps next with metrics.
func NewInstrumented(next Store) *Instrumented {
	return &Instrumented{next: next}
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(op, err, time.Since(start).Seconds())
}

func (s *Instrumented) Create(ctx context.Context, ownerID uuid.UUID, title *string, metadata map[string]any) (conv *model.Conversation, err error) {
	defer func(start time.Time) { observe("create", start, err) }(time.Now())
	return s.next.Create(ctx, ownerID, title, metadata)
}

func (s *Instrumented) GetByID(ctx context.Context, ownerID, id uuid.UUID, includeDeleted bool) (conv *model.Conversation, err error) {
	defer func(start time.Time) { observe("get", start, expectedMiss(err)) }(time.Now())
	return s.next.GetByID(ctx, ownerID, id, includeDeleted)
}

func (s *Instrumented) List(ctx context.Context, ownerID uuid.UUID, params ListParams) (items []*model.Conversation, total int, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())
	return s.next.List(ctx, ownerID, params)
}

func (s *Instrumented) Update(ctx context.Context, conv *model.Conversation, changes model.Changes) (updated *model.Conversation, err error) {
	defer func(start time.Time) { observe("update", start, expectedMiss(err)) }(time.Now())
	return s.next.Update(ctx, conv, changes)
}

func (s *Instrumented) SoftDelete(ctx context.Context, conv *model.Conversation) (deleted *model.Conversation, err error) {
	defer func(start time.Time) { observe("soft_delete", start, expectedMiss(err)) }(time.Now())
	return s.next.SoftDelete(ctx, conv)
}

func (s *Instrumented) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { observe("ping", start, err) }(time.Now())
	return s.next.Ping(ctx)
}

// expectedMiss keeps not-found and stale writes out of the error series.
func expectedMiss(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStale) {
		return nil
	}
	return err
}
