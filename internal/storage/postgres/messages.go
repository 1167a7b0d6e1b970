package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/tavarakyyti/chat/internal/chat"
)

// MessageStore implements chat.MessageStore.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore creates a MessageStore backed by db.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Create implements chat.MessageStore. Attachments are stored as JSONB.
func (s *MessageStore) Create(ctx context.Context, m *chat.Message) error {
	atts := m.Attachments
	if atts == nil {
		atts = []chat.Attachment{}
	}
	attsJSON, err := json.Marshal(atts)
	if err != nil {
		return fmt.Errorf("postgres: marshal attachments: %w", err)
	}
	deletedFor := m.DeletedFor
	if deletedFor == nil {
		deletedFor = []string{}
	}

	const query = `
		INSERT INTO messages (id, conversation_id, sender_id, text, attachments, system, deleted_for, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.db.ExecContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.Text, attsJSON, m.System, pq.Array(deletedFor), m.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("postgres: insert message: %w", err)
	}
	return nil
}

// List implements chat.MessageStore.
func (s *MessageStore) List(ctx context.Context, conversationID string, q chat.MessageQuery) ([]*chat.Message, error) {
	const base = `
		SELECT id, conversation_id, sender_id, text, attachments, system, deleted_for, created_at
		FROM messages
		WHERE conversation_id = $1 AND NOT ($2 = ANY(deleted_for))`

	var (
		rows    *sql.Rows
		err     error
		reverse bool
	)
	switch {
	case q.Before != nil:
		reverse = true
		rows, err = s.db.QueryContext(ctx, base+` AND created_at < $3 ORDER BY created_at DESC, seq DESC LIMIT $4`,
			conversationID, q.ViewerID, q.Before.UTC(), q.Limit)
	case q.After != nil:
		rows, err = s.db.QueryContext(ctx, base+` AND created_at > $3 ORDER BY created_at, seq LIMIT $4`,
			conversationID, q.ViewerID, q.After.UTC(), q.Limit)
	default:
		reverse = true
		rows, err = s.db.QueryContext(ctx, base+` ORDER BY created_at DESC, seq DESC LIMIT $3`,
			conversationID, q.ViewerID, q.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list messages: %w", err)
	}

	out := make([]*chat.Message, 0, q.Limit)
	for rows.Next() {
		var m chat.Message
		var atts []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &atts, &m.System,
			pq.Array(&m.DeletedFor), &m.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		if err := json.Unmarshal(atts, &m.Attachments); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: decode attachments of %s: %w", m.ID, err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, &m)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// MarkDeleted implements chat.MessageStore. Marking twice is a no-op.
func (s *MessageStore) MarkDeleted(ctx context.Context, conversationID, messageID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET deleted_for = CASE WHEN $3 = ANY(deleted_for) THEN deleted_for ELSE array_append(deleted_for, $3) END
		WHERE id = $1 AND conversation_id = $2`, messageID, conversationID, userID)
	if err != nil {
		return fmt.Errorf("postgres: mark deleted: %w", err)
	}
	return affected(res, chat.ErrNotFound)
}
