package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

type memoryRow struct {
	conv *model.Conversation
	seq  uint64
}

// MemoryStore keeps conversations in process memory. Callers only ever see
// copies of the stored rows.
type MemoryStore struct {
	now  Clock
	mu   sync.RWMutex
	rows map[uuid.UUID]*memoryRow
	seq  uint64
}

// NewMemoryStore creates an empty in-memory store. A nil clock uses the
// current UTC time.
func NewMemoryStore(now Clock) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:  now,
		rows: make(map[uuid.UUID]*memoryRow),
	}
}

// Create inserts a new active conversation.
func (s *MemoryStore) Create(ctx context.Context, ownerID uuid.UUID, title *string, metadata map[string]any) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	conv := &model.Conversation{
		ID:        newID(),
		OwnerID:   ownerID,
		Title:     title,
		Status:    model.StatusActive,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.seq++
	s.rows[conv.ID] = &memoryRow{conv: conv.Clone(), seq: s.seq}
	s.mu.Unlock()

	return conv.Clone(), nil
}

// GetByID returns the owner's conversation with the given id.
func (s *MemoryStore) GetByID(ctx context.Context, ownerID, id uuid.UUID, includeDeleted bool) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.lookup(ownerID, id)
	if !ok || (!includeDeleted && row.conv.IsDeleted()) {
		return nil, ErrNotFound
	}
	return row.conv.Clone(), nil
}

// List returns one page of the owner's conversations and the filtered total.
func (s *MemoryStore) List(ctx context.Context, ownerID uuid.UUID, params ListParams) ([]*model.Conversation, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	matched := make([]*memoryRow, 0, len(s.rows))
	for _, row := range s.rows {
		if row.conv.OwnerID != ownerID || !matchStatus(row.conv.Status, params.Status) {
			continue
		}
		matched = append(matched, row)
	}

	slices.SortFunc(matched, func(a, b *memoryRow) int {
		return newestFirst(a.conv, b.conv, a.seq, b.seq)
	})

	total := len(matched)
	start := min(params.Offset(), total)
	end := start + min(params.Limit, total-start)

	items := make([]*model.Conversation, 0, end-start)
	for _, row := range matched[start:end] {
		items = append(items, row.conv.Clone())
	}
	s.mu.RUnlock()

	return items, total, nil
}

// Update applies the present fields and refreshes UpdatedAt.
func (s *MemoryStore) Update(ctx context.Context, conv *model.Conversation, changes model.Changes) (*model.Conversation, error) {
	return s.write(ctx, conv, func(c *model.Conversation, _ time.Time) {
		changes.Apply(c)
	})
}

// SoftDelete marks the conversation deleted.
func (s *MemoryStore) SoftDelete(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	return s.write(ctx, conv, func(c *model.Conversation, now time.Time) {
		c.MarkDeleted(now)
	})
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) write(ctx context.Context, conv *model.Conversation, mutate func(*model.Conversation, time.Time)) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.lookup(conv.OwnerID, conv.ID)
	if !ok {
		return nil, ErrNotFound
	}
	if row.conv.Status != conv.Status {
		return nil, ErrStale
	}

	now := s.now()
	next := row.conv.Clone()
	mutate(next, now)
	next.UpdatedAt = now
	row.conv = next

	return next.Clone(), nil
}

func (s *MemoryStore) lookup(ownerID, id uuid.UUID) (*memoryRow, bool) {
	row, ok := s.rows[id]
	if !ok || row.conv.OwnerID != ownerID {
		return nil, false
	}
	return row, true
}

// newestFirst orders by UpdatedAt descending, then by insertion order.
func newestFirst(a, b *model.Conversation, seqA, seqB uint64) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(seqA, seqB)
}

func matchStatus(status model.Status, filter *model.Status) bool {
	if filter == nil {
		return status != model.StatusDeleted
	}
	return status == *filter
}
