package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 31, 13, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func strPtr(s string) *string { return &s }

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T, clock Clock) Store) {
	ctx := context.Background()

	setup := func(t *testing.T) (Store, *testClock) {
		clock := newTestClock()
		return newStore(t, clock.Now), clock
	}

	t.Run("create assigns identity and timestamps", func(t *testing.T) {
		s, clock := setup(t)
		owner := uuid.New()

		conv, err := s.Create(ctx, owner, strPtr("Trip Plan"), map[string]any{"lang": "en"})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, conv.ID)
		assert.Equal(t, owner, conv.OwnerID)
		assert.Equal(t, model.StatusActive, conv.Status)
		assert.Equal(t, "Trip Plan", *conv.Title)
		assert.Equal(t, map[string]any{"lang": "en"}, conv.Metadata)
		assert.True(t, clock.Now().Equal(conv.CreatedAt))
		assert.True(t, conv.CreatedAt.Equal(conv.UpdatedAt))
		assert.Nil(t, conv.ArchivedAt)
		assert.Nil(t, conv.DeletedAt)
	})

	t.Run("get is owner scoped", func(t *testing.T) {
		s, _ := setup(t)
		owner := uuid.New()
		conv, err := s.Create(ctx, owner, nil, nil)
		require.NoError(t, err)

		got, err := s.GetByID(ctx, owner, conv.ID, false)
		require.NoError(t, err)
		assert.Equal(t, conv.ID, got.ID)
		assert.Nil(t, got.Title)
		assert.Nil(t, got.Metadata)

		_, err = s.GetByID(ctx, uuid.New(), conv.ID, true)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetByID(ctx, owner, uuid.New(), true)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get hides deleted unless asked", func(t *testing.T) {
		s, _ := setup(t)
		owner := uuid.New()
		conv, err := s.Create(ctx, owner, nil, nil)
		require.NoError(t, err)
		_, err = s.SoftDelete(ctx, conv)
		require.NoError(t, err)

		_, err = s.GetByID(ctx, owner, conv.ID, false)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.GetByID(ctx, owner, conv.ID, true)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDeleted, got.Status)
	})

	t.Run("update applies only present fields", func(t *testing.T) {
		s, clock := setup(t)
		owner := uuid.New()
		conv, err := s.Create(ctx, owner, strPtr("keep"), map[string]any{"a": "b"})
		require.NoError(t, err)

		clock.Advance(time.Minute)
		got, err := s.Update(ctx, conv, model.Changes{Metadata: model.Some[map[string]any](nil)})
		require.NoError(t, err)

		require.NotNil(t, got.Title)
		assert.Equal(t, "keep", *got.Title)
		assert.Nil(t, got.Metadata)
		assert.Equal(t, model.StatusActive, got.Status)
		assert.True(t, clock.Now().Equal(got.UpdatedAt))
		assert.True(t, conv.CreatedAt.Equal(got.CreatedAt))

		// the caller's copy is untouched
		assert.Equal(t, map[string]any{"a": "b"}, conv.Metadata)
	})

	t.Run("update persists lifecycle stamps", func(t *testing.T) {
		s, clock := setup(t)
		owner := uuid.New()
		conv, err := s.Create(ctx, owner, nil, nil)
		require.NoError(t, err)

		archivedAt := clock.Now().Add(time.Second)
		got, err := s.Update(ctx, conv, model.Changes{
			Status:     model.Some(model.StatusArchived),
			ArchivedAt: model.Some(&archivedAt),
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusArchived, got.Status)
		require.NotNil(t, got.ArchivedAt)
		assert.True(t, archivedAt.Equal(*got.ArchivedAt))

		got, err = s.Update(ctx, got, model.Changes{
			Status:     model.Some(model.StatusActive),
			ArchivedAt: model.Some[*time.Time](nil),
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, got.Status)
		assert.Nil(t, got.ArchivedAt)
	})

	t.Run("update of foreign conversation is not found", func(t *testing.T) {
		s, _ := setup(t)
		conv, err := s.Create(ctx, uuid.New(), nil, nil)
		require.NoError(t, err)

		foreign := conv.Clone()
		foreign.OwnerID = uuid.New()
		_, err = s.Update(ctx, foreign, model.Changes{Title: model.Some(strPtr("x"))})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("writes based on a stale read are rejected", func(t *testing.T) {
		s, clock := setup(t)
		owner := uuid.New()
		conv, err := s.Create(ctx, owner, nil, nil)
		require.NoError(t, err)

		now := clock.Now()
		archived, err := s.Update(ctx, conv, model.Changes{
			Status:     model.Some(model.StatusArchived),
			ArchivedAt: model.Some(&now),
		})
		require.NoError(t, err)

		// another request deletes it after this one read it as archived
		_, err = s.SoftDelete(ctx, archived)
		require.NoError(t, err)

		_, err = s.Update(ctx, archived, model.Changes{
			Status:     model.Some(model.StatusActive),
			ArchivedAt: model.Some[*time.Time](nil),
		})
		assert.ErrorIs(t, err, ErrStale)

		_, err = s.SoftDelete(ctx, archived)
		assert.ErrorIs(t, err, ErrStale)

		_, err = s.Update(ctx, conv, model.Changes{Title: model.Some(strPtr("late"))})
		assert.ErrorIs(t, err, ErrStale)

		got, err := s.GetByID(ctx, owner, conv.ID, true)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDeleted, got.Status)
		assert.NotNil(t, got.DeletedAt)
		assert.NotNil(t, got.ArchivedAt)
		assert.Nil(t, got.Title)
	})

	t.Run("soft delete stamps deleted_at", func(t *testing.T) {
		s, clock := setup(t)
		owner := uuid.New()
		conv, err := s.Create(ctx, owner, nil, nil)
		require.NoError(t, err)

		clock.Advance(time.Hour)
		got, err := s.SoftDelete(ctx, conv)
		require.NoError(t, err)

		assert.Equal(t, model.StatusDeleted, got.Status)
		require.NotNil(t, got.DeletedAt)
		assert.True(t, clock.Now().Equal(*got.DeletedAt))
		assert.Equal(t, model.StatusActive, conv.Status)
		assert.Nil(t, conv.DeletedAt)
	})

	t.Run("list orders by update time and counts the filtered set", func(t *testing.T) {
		s, clock := setup(t)
		owner := uuid.New()

		var ids []uuid.UUID
		for i := 0; i < 5; i++ {
			conv, err := s.Create(ctx, owner, nil, nil)
			require.NoError(t, err)
			ids = append(ids, conv.ID)
			clock.Advance(time.Second)
		}
		_, err := s.Create(ctx, uuid.New(), nil, nil)
		require.NoError(t, err)

		// touch the first one so it becomes the most recent
		first, err := s.GetByID(ctx, owner, ids[0], false)
		require.NoError(t, err)
		_, err = s.Update(ctx, first, model.Changes{Title: model.Some(strPtr("touched"))})
		require.NoError(t, err)

		items, total, err := s.List(ctx, owner, ListParams{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, items, 2)
		assert.Equal(t, ids[0], items[0].ID)
		assert.Equal(t, ids[4], items[1].ID)

		items, total, err = s.List(ctx, owner, ListParams{Page: 3, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, items, 1)
		assert.Equal(t, ids[1], items[0].ID)

		items, total, err = s.List(ctx, owner, ListParams{Page: 4, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, items)

		items, total, err = s.List(ctx, owner, ListParams{Page: 200000000000000000, Limit: 50})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, items)
	})

	t.Run("list breaks ties by insertion order", func(t *testing.T) {
		s, _ := setup(t)
		owner := uuid.New()

		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			conv, err := s.Create(ctx, owner, nil, nil)
			require.NoError(t, err)
			ids = append(ids, conv.ID)
		}

		items, _, err := s.List(ctx, owner, ListParams{Page: 1, Limit: 10})
		require.NoError(t, err)
		require.Len(t, items, 3)
		for i := range ids {
			assert.Equal(t, ids[i], items[i].ID)
		}
	})

	t.Run("list status filter", func(t *testing.T) {
		s, clock := setup(t)
		owner := uuid.New()

		active, err := s.Create(ctx, owner, nil, nil)
		require.NoError(t, err)
		archived, err := s.Create(ctx, owner, nil, nil)
		require.NoError(t, err)
		deleted, err := s.Create(ctx, owner, nil, nil)
		require.NoError(t, err)

		now := clock.Now()
		_, err = s.Update(ctx, archived, model.Changes{Status: model.Some(model.StatusArchived), ArchivedAt: model.Some(&now)})
		require.NoError(t, err)
		_, err = s.SoftDelete(ctx, deleted)
		require.NoError(t, err)

		items, total, err := s.List(ctx, owner, ListParams{Page: 1, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.ElementsMatch(t, []uuid.UUID{active.ID, archived.ID}, idsOf(items))

		for status, want := range map[model.Status]uuid.UUID{
			model.StatusActive:   active.ID,
			model.StatusArchived: archived.ID,
			model.StatusDeleted:  deleted.ID,
		} {
			filter := status
			items, total, err := s.List(ctx, owner, ListParams{Page: 1, Limit: 10, Status: &filter})
			require.NoError(t, err)
			assert.Equal(t, 1, total, status)
			assert.Equal(t, []uuid.UUID{want}, idsOf(items), status)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s, _ := setup(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func idsOf(items []*model.Conversation) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, c := range items {
		ids = append(ids, c.ID)
	}
	return ids
}
