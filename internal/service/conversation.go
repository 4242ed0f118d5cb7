// Package service provides business logic for the conversation service.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversations-api/internal/lifecycle"
	"github.com/capitalize-ai/conversations-api/internal/model"
	"github.com/capitalize-ai/conversations-api/internal/store"
	"github.com/capitalize-ai/conversations-api/pkg/logger"
	"github.com/capitalize-ai/conversations-api/pkg/metrics"
)

// MaxTitleLength is the longest title accepted, in characters.
const MaxTitleLength = 255

// ListInput selects a page of conversations. An empty Status lists every
// conversation that is not deleted. Pages past the end are empty.
type ListInput struct {
	Page   int    `validate:"min=1"`
	Limit  int    `validate:"pagelimit"`
	Status string `validate:"omitempty,oneof=active archived deleted"`
}

// ConversationService handles conversation operations. Every call is scoped
// to the owner passed in; conversations of other owners are reported as not found.
type ConversationService struct {
	store    store.Store
	events   EventPublisher
	now      func() time.Time
	logger   *logger.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// Option configures a ConversationService.
type Option func(*ConversationService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ConversationService) {
		s.now = now
	}
}

// WithEventPublisher sets where lifecycle events are delivered.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *ConversationService) {
		s.events = p
	}
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, log *logger.Logger, opts ...Option) *ConversationService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterAlias("pagelimit", fmt.Sprintf("min=1,max=%d", MaxLimit))

	s := &ConversationService{
		store:    st,
		events:   NopPublisher{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log,
		validate: validate,
		tracer:   otel.Tracer("github.com/capitalize-ai/conversations-api/internal/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create creates a new active conversation.
func (s *ConversationService) Create(ctx context.Context, ownerID uuid.UUID, req *model.CreateConversationRequest) (conv *model.Conversation, err error) {
	ctx, span := s.startSpan(ctx, "Create", ownerID, uuid.Nil)
	defer func() { endSpan(span, err) }()

	title, err := s.normalizeTitle(req.Title)
	if err != nil {
		return nil, err
	}

	conv, err = s.store.Create(ctx, ownerID, title, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	metrics.ConversationsCreated.Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("owner_id", ownerID.String()),
	)
	s.publish(ctx, newEvent(model.EventTypeCreated, conv, "", nil, s.now()))

	return conv, nil
}

// Get retrieves a live conversation by ID.
func (s *ConversationService) Get(ctx context.Context, ownerID, id uuid.UUID) (conv *model.Conversation, err error) {
	ctx, span := s.startSpan(ctx, "Get", ownerID, id)
	defer func() { endSpan(span, err) }()

	return s.lookup(ctx, ownerID, id, false)
}

// List retrieves one page of the owner's conversations.
func (s *ConversationService) List(ctx context.Context, ownerID uuid.UUID, in ListInput) (resp *model.ListConversationsResponse, err error) {
	ctx, span := s.startSpan(ctx, "List", ownerID, uuid.Nil)
	defer func() { endSpan(span, err) }()

	if err := s.validate.Struct(in); err != nil {
		return nil, fromValidator(err)
	}

	params := store.ListParams{Page: in.Page, Limit: in.Limit}
	if in.Status != "" {
		status := model.Status(in.Status)
		params.Status = &status
	}

	items, total, err := s.store.List(ctx, ownerID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	return &model.ListConversationsResponse{
		Data:       items,
		Pagination: Paginate(in.Page, in.Limit, total),
	}, nil
}

// Update applies a partial update. Only fields present in req are changed.
// A status change goes through the lifecycle rules first; if they reject it,
// nothing is written.
func (s *ConversationService) Update(ctx context.Context, ownerID, id uuid.UUID, req *model.UpdateConversationRequest) (updated *model.Conversation, err error) {
	ctx, span := s.startSpan(ctx, "Update", ownerID, id)
	defer func() { endSpan(span, err) }()

	changes, target, err := s.parseUpdate(req)
	if err != nil {
		return nil, err
	}

	conv, err := s.lookup(ctx, ownerID, id, true)
	if err != nil {
		return nil, err
	}
	if conv.IsDeleted() {
		return nil, fmt.Errorf("%w: conversation is deleted and cannot be modified", ErrConflict)
	}

	if target != nil {
		effect, err := s.transition(conv, *target)
		if err != nil {
			return nil, err
		}
		lc := effect.Changes()
		changes.Status = lc.Status
		changes.ArchivedAt = lc.ArchivedAt
		changes.DeletedAt = lc.DeletedAt
	}

	if changes.Empty() {
		return conv, nil
	}

	updated, err = s.store.Update(ctx, conv, changes)
	if err != nil {
		return nil, s.storeError("update", err)
	}

	eventType := eventTypeFor(conv.Status, updated.Status)
	if eventType != model.EventTypeUpdated {
		s.logger.Info("conversation status changed",
			zap.String("conversation_id", id.String()),
			zap.String("from", string(conv.Status)),
			zap.String("to", string(updated.Status)),
		)
	}
	s.publish(ctx, newEvent(eventType, updated, conv.Status, changedFields(changes), s.now()))

	return updated, nil
}

// Delete soft deletes a conversation. Deleting an already deleted
// conversation is a conflict.
func (s *ConversationService) Delete(ctx context.Context, ownerID, id uuid.UUID) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", ownerID, id)
	defer func() { endSpan(span, err) }()

	conv, err := s.lookup(ctx, ownerID, id, true)
	if err != nil {
		return err
	}

	if err := s.allow(conv.Status, model.StatusDeleted); err != nil {
		return err
	}

	deleted, err := s.store.SoftDelete(ctx, conv)
	if err != nil {
		return s.storeError("delete", err)
	}

	s.logger.Info("conversation deleted",
		zap.String("conversation_id", id.String()),
		zap.String("owner_id", ownerID.String()),
	)
	s.publish(ctx, newEvent(model.EventTypeDeleted, deleted, conv.Status, nil, s.now()))

	return nil
}

func (s *ConversationService) lookup(ctx context.Context, ownerID, id uuid.UUID, includeDeleted bool) (*model.Conversation, error) {
	conv, err := s.store.GetByID(ctx, ownerID, id, includeDeleted)
	if err != nil {
		return nil, s.storeError("get", err)
	}
	return conv, nil
}

func (s *ConversationService) transition(conv *model.Conversation, target model.Status) (lifecycle.Effect, error) {
	effect, err := lifecycle.Transition(conv.Status, target, s.now())
	metrics.RecordTransition(string(conv.Status), string(target), err == nil)
	if err != nil {
		return lifecycle.Effect{}, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return effect, nil
}

// allow checks the lifecycle table without computing the effect. The store
// stamps deleted_at itself on a soft delete.
func (s *ConversationService) allow(from, to model.Status) error {
	ok := lifecycle.Allowed(from, to)
	metrics.RecordTransition(string(from), string(to), ok)
	if !ok {
		return fmt.Errorf("%w: %w: %s -> %s", ErrConflict, lifecycle.ErrIllegalTransition, from, to)
	}
	return nil
}

func (s *ConversationService) storeError(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, store.ErrStale) {
		return fmt.Errorf("%w: conversation was modified concurrently", ErrConflict)
	}
	return fmt.Errorf("failed to %s conversation: %w", op, err)
}

// parseUpdate validates req and returns the field changes plus the requested
// status, if any. A present but empty status is ignored.
func (s *ConversationService) parseUpdate(req *model.UpdateConversationRequest) (model.Changes, *model.Status, error) {
	var changes model.Changes

	if title, ok := req.Title.Get(); ok {
		normalized, err := s.normalizeTitle(title)
		if err != nil {
			return changes, nil, err
		}
		changes.Title = model.Some(normalized)
	}

	if metadata, ok := req.Metadata.Get(); ok {
		changes.Metadata = model.Some(metadata)
	}

	var target *model.Status
	if raw, ok := req.Status.Get(); ok && raw != nil && *raw != "" {
		status, valid := model.ParseStatus(*raw)
		if !valid {
			return changes, nil, invalid("status", "must be one of: active archived deleted")
		}
		target = &status
	}

	return changes, target, nil
}

// normalizeTitle trims the title; an empty result means no title.
func (s *ConversationService) normalizeTitle(title *string) (*string, error) {
	if title == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*title)
	if trimmed == "" {
		return nil, nil
	}
	if err := s.validate.Var(trimmed, fmt.Sprintf("max=%d", MaxTitleLength)); err != nil {
		return nil, invalid("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
	return &trimmed, nil
}

func (s *ConversationService) startSpan(ctx context.Context, op string, ownerID, id uuid.UUID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("owner_id", ownerID.String())}
	if id != uuid.Nil {
		attrs = append(attrs, attribute.String("conversation_id", id.String()))
	}
	return s.tracer.Start(ctx, "ConversationService."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
