package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pinger interface {
	Ping(ctx context.Context) error
}

const conversationColumns = `id, owner_id, title, status::text, metadata,
	created_at, updated_at, archived_at, deleted_at`

// PostgresStore persists conversations in PostgreSQL. Each write is a single
// statement scoped by owner and id, so it commits or fails as a whole.
type PostgresStore struct {
	db  DBTX
	now Clock
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db DBTX, now Clock) *PostgresStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &PostgresStore{db: db, now: now}
}

// Create inserts a new active conversation.
func (s *PostgresStore) Create(ctx context.Context, ownerID uuid.UUID, title *string, metadata map[string]any) (*model.Conversation, error) {
	query := `
		INSERT INTO conversations (id, owner_id, title, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', $4, $5, $5)
		RETURNING ` + conversationColumns

	conv, err := scanConversation(s.db.QueryRow(ctx, query,
		newID(), ownerID, title, jsonArg(metadata), s.now(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetByID returns the owner's conversation with the given id.
func (s *PostgresStore) GetByID(ctx context.Context, ownerID, id uuid.UUID, includeDeleted bool) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE id = $1 AND owner_id = $2`
	if !includeDeleted {
		query += ` AND status <> 'deleted'`
	}

	conv, err := scanConversation(s.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// List returns one page of the owner's conversations and the filtered total.
func (s *PostgresStore) List(ctx context.Context, ownerID uuid.UUID, params ListParams) ([]*model.Conversation, int, error) {
	where := `owner_id = $1 AND status <> 'deleted'`
	args := []any{ownerID}
	if params.Status != nil {
		where = `owner_id = $1 AND status = $2::conversation_status`
		args = append(args, string(*params.Status))
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM conversations WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM conversations WHERE %s
		ORDER BY updated_at DESC, seq ASC
		LIMIT $%d OFFSET $%d`, conversationColumns, where, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset())

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]*model.Conversation, 0, params.Limit)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation: %w", err)
		}
		items = append(items, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	return items, total, nil
}

// Update applies the present fields and refreshes updated_at.
func (s *PostgresStore) Update(ctx context.Context, conv *model.Conversation, changes model.Changes) (*model.Conversation, error) {
	var sets []string
	args := []any{conv.ID, conv.OwnerID, string(conv.Status)}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if v, ok := changes.Title.Get(); ok {
		add("title", v)
	}
	if v, ok := changes.Metadata.Get(); ok {
		add("metadata", jsonArg(v))
	}
	if v, ok := changes.Status.Get(); ok {
		args = append(args, string(v))
		sets = append(sets, fmt.Sprintf("status = $%d::conversation_status", len(args)))
	}
	if v, ok := changes.ArchivedAt.Get(); ok {
		add("archived_at", v)
	}
	if v, ok := changes.DeletedAt.Get(); ok {
		add("deleted_at", v)
	}
	add("updated_at", s.now())

	return s.write(ctx, conv, sets, args)
}

// SoftDelete marks the conversation deleted.
func (s *PostgresStore) SoftDelete(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	next := conv.Clone()
	next.MarkDeleted(s.now())

	return s.write(ctx, conv,
		[]string{"status = 'deleted'", "deleted_at = $4", "updated_at = $4"},
		[]any{conv.ID, conv.OwnerID, string(conv.Status), *next.DeletedAt},
	)
}

// Ping checks the connection when the underlying handle supports it.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if p, ok := s.db.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// write runs a single UPDATE guarded by the status the caller read. Args $1
// to $3 are the id, the owner and that status.
func (s *PostgresStore) write(ctx context.Context, conv *model.Conversation, sets []string, args []any) (*model.Conversation, error) {
	query := fmt.Sprintf(`UPDATE conversations SET %s
		WHERE id = $1 AND owner_id = $2 AND status = $3::conversation_status
		RETURNING %s`, strings.Join(sets, ", "), conversationColumns)

	updated, err := scanConversation(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.missed(ctx, conv)
		}
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return updated, nil
}

// missed tells a guarded write that matched no row apart: the record is
// either gone for this owner or its status moved on.
func (s *PostgresStore) missed(ctx context.Context, conv *model.Conversation) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1 AND owner_id = $2)`,
		conv.ID, conv.OwnerID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists {
		return ErrStale
	}
	return ErrNotFound
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		conv     model.Conversation
		status   string
		metadata map[string]any
	)
	if err := row.Scan(
		&conv.ID, &conv.OwnerID, &conv.Title, &status, &metadata,
		&conv.CreatedAt, &conv.UpdatedAt, &conv.ArchivedAt, &conv.DeletedAt,
	); err != nil {
		return nil, err
	}
	conv.Status = model.Status(status)
	conv.Metadata = metadata
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	conv.ArchivedAt = utcPtr(conv.ArchivedAt)
	conv.DeletedAt = utcPtr(conv.DeletedAt)
	return &conv, nil
}

// jsonArg maps a nil document to SQL NULL instead of a JSON null.
func jsonArg(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
