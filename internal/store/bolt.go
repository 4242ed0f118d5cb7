package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

var conversationsBucket = []byte("conversations")

type boltRecord struct {
	Seq          uint64              `json:"seq"`
	Conversation *model.Conversation `json:"conversation"`
}

// BoltStore keeps conversations in a single bbolt file. Every owner has a
// nested bucket keyed by conversation ID, so lookups are owner scoped by
// construction.
type BoltStore struct {
	db  *bolt.DB
	now Clock
}

// OpenBolt opens or creates the database file at path.
func OpenBolt(path string, now Clock) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &BoltStore{db: db, now: now}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Create inserts a new active conversation.
func (s *BoltStore) Create(ctx context.Context, ownerID uuid.UUID, title *string, metadata map[string]any) (*model.Conversation, error) {
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

	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(conversationsBucket)
		owner, err := root.CreateBucketIfNotExists(ownerID[:])
		if err != nil {
			return err
		}
		seq, err := root.NextSequence()
		if err != nil {
			return err
		}
		return putRecord(owner, &boltRecord{Seq: seq, Conversation: conv})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	return conv.Clone(), nil
}

// GetByID returns the owner's conversation with the given id.
func (s *BoltStore) GetByID(ctx context.Context, ownerID, id uuid.UUID, includeDeleted bool) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var conv *model.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx, ownerID, id)
		if err != nil {
			return err
		}
		conv = rec.Conversation
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !includeDeleted && conv.IsDeleted() {
		return nil, ErrNotFound
	}
	return conv, nil
}

// List returns one page of the owner's conversations and the filtered total.
func (s *BoltStore) List(ctx context.Context, ownerID uuid.UUID, params ListParams) ([]*model.Conversation, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var matched []*boltRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		owner := tx.Bucket(conversationsBucket).Bucket(ownerID[:])
		if owner == nil {
			return nil
		}
		return owner.ForEach(func(_, v []byte) error {
			rec := &boltRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return err
			}
			if matchStatus(rec.Conversation.Status, params.Status) {
				matched = append(matched, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	slices.SortFunc(matched, func(a, b *boltRecord) int {
		return newestFirst(a.Conversation, b.Conversation, a.Seq, b.Seq)
	})

	total := len(matched)
	start := min(params.Offset(), total)
	end := start + min(params.Limit, total-start)

	items := make([]*model.Conversation, 0, end-start)
	for _, rec := range matched[start:end] {
		items = append(items, rec.Conversation)
	}
	return items, total, nil
}

// Update applies the present fields and refreshes UpdatedAt.
func (s *BoltStore) Update(ctx context.Context, conv *model.Conversation, changes model.Changes) (*model.Conversation, error) {
	return s.write(ctx, conv, func(c *model.Conversation, _ time.Time) {
		changes.Apply(c)
	})
}

// SoftDelete marks the conversation deleted.
func (s *BoltStore) SoftDelete(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	return s.write(ctx, conv, func(c *model.Conversation, now time.Time) {
		c.MarkDeleted(now)
	})
}

// Ping checks that the database is open and initialised.
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(conversationsBucket) == nil {
			return errors.New("conversations bucket missing")
		}
		return nil
	})
}

func (s *BoltStore) write(ctx context.Context, conv *model.Conversation, mutate func(*model.Conversation, time.Time)) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var next *model.Conversation
	err := s.db.Update(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx, conv.OwnerID, conv.ID)
		if err != nil {
			return err
		}
		if rec.Conversation.Status != conv.Status {
			return ErrStale
		}

		now := s.now()
		mutate(rec.Conversation, now)
		rec.Conversation.UpdatedAt = now
		next = rec.Conversation

		return putRecord(tx.Bucket(conversationsBucket).Bucket(conv.OwnerID[:]), rec)
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStale) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return next, nil
}

func getRecord(tx *bolt.Tx, ownerID, id uuid.UUID) (*boltRecord, error) {
	owner := tx.Bucket(conversationsBucket).Bucket(ownerID[:])
	if owner == nil {
		return nil, ErrNotFound
	}
	data := owner.Get(id[:])
	if data == nil {
		return nil, ErrNotFound
	}
	rec := &boltRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return rec, nil
}

func putRecord(b *bolt.Bucket, rec *boltRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put(rec.Conversation.ID[:], data)
}
