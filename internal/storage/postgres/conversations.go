package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tavarakyyti/chat/internal/chat"
)

// ConversationStore implements chat.ConversationStore.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore creates a ConversationStore backed by db.
func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Create implements chat.ConversationStore.
func (s *ConversationStore) Create(ctx context.Context, c *chat.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertConversation(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit conversation: %w", err)
	}
	return nil
}

// FindOrCreateTransport implements chat.ConversationStore. A transaction
// scoped advisory lock on the transport id serializes concurrent callers.
func (s *ConversationStore) FindOrCreateTransport(ctx context.Context, c *chat.Conversation) (*chat.Conversation, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "transport:"+c.TransportID); err != nil {
		return nil, false, fmt.Errorf("postgres: lock transport %s: %w", c.TransportID, err)
	}

	const findQuery = `
		SELECT c.id
		FROM conversations c
		WHERE c.type = 'transport'
		  AND c.transport_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM unnest($2::text[]) AS want(user_id)
		      WHERE NOT EXISTS (
		          SELECT 1 FROM conversation_participants p
		          WHERE p.conversation_id = c.id AND p.user_id = want.user_id))
		ORDER BY c.created_at, c.seq
		LIMIT 1`

	var existingID string
	err = tx.QueryRowContext(ctx, findQuery, c.TransportID, pq.Array(c.ParticipantIDs())).Scan(&existingID)
	switch {
	case err == nil:
		conv, err := loadConversation(ctx, tx, existingID)
		if err != nil {
			return nil, false, err
		}
		return conv, false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("postgres: find transport conversation: %w", err)
	}

	if err := insertConversation(ctx, tx, c); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("postgres: commit conversation: %w", err)
	}
	return c.Clone(), true, nil
}

func insertConversation(ctx context.Context, q queryer, c *chat.Conversation) error {
	const convQuery = `
		INSERT INTO conversations (id, type, transport_id, created_by, last_message_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := q.ExecContext(ctx, convQuery,
		c.ID, string(c.Type), c.TransportID, c.CreatedBy,
		c.LastMessageAt.UTC(), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("postgres: insert conversation: %w", err)
	}

	const partQuery = `
		INSERT INTO conversation_participants (conversation_id, user_id, position, role, last_read_at, muted_until)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for i, p := range c.Participants {
		if _, err := q.ExecContext(ctx, partQuery,
			c.ID, p.UserID, i, string(p.Role), nullTime(p.LastReadAt), nullTime(p.MutedUntil),
		); err != nil {
			return fmt.Errorf("postgres: insert participant: %w", err)
		}
	}

	for _, bp := range c.BlockedPairs {
		if err := insertBlock(ctx, q, c.ID, bp); err != nil {
			return err
		}
	}
	return nil
}

func insertBlock(ctx context.Context, q queryer, id string, bp chat.BlockPair) error {
	const query = `
		INSERT INTO conversation_blocks (conversation_id, blocker, blocked)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, blocker, blocked) DO NOTHING`
	if _, err := q.ExecContext(ctx, query, id, bp.Blocker, bp.Blocked); err != nil {
		return fmt.Errorf("postgres: insert block: %w", err)
	}
	return nil
}

// Get implements chat.ConversationStore.
func (s *ConversationStore) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	return loadConversation(ctx, s.db, id)
}

const conversationColumns = `id, type, transport_id, created_by, last_message_at, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*chat.Conversation, error) {
	var c chat.Conversation
	var typ string
	if err := row.Scan(&c.ID, &typ, &c.TransportID, &c.CreatedBy, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Type = chat.ConversationType(typ)
	c.LastMessageAt = c.LastMessageAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.Participants = []chat.Participant{}
	c.BlockedPairs = []chat.BlockPair{}
	return &c, nil
}

func loadConversation(ctx context.Context, q queryer, id string) (*chat.Conversation, error) {
	c, err := scanConversation(q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, chat.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get conversation: %w", err)
	}
	if err := attachMembers(ctx, q, map[string]*chat.Conversation{c.ID: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// attachMembers fills participants and block pairs for every conversation in
// byID with one query each.
func attachMembers(ctx context.Context, q queryer, byID map[string]*chat.Conversation) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT conversation_id, user_id, role, last_read_at, muted_until
		FROM conversation_participants
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("postgres: load participants: %w", err)
	}
	for rows.Next() {
		var convID, role string
		var p chat.Participant
		var lastRead, muted sql.NullTime
		if err := rows.Scan(&convID, &p.UserID, &role, &lastRead, &muted); err != nil {
			rows.Close()
			return fmt.Errorf("postgres: scan participant: %w", err)
		}
		p.Role = chat.Role(role)
		p.LastReadAt = timePtr(lastRead)
		p.MutedUntil = timePtr(muted)
		if c := byID[convID]; c != nil {
			c.Participants = append(c.Participants, p)
		}
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT conversation_id, blocker, blocked
		FROM conversation_blocks
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, seq`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("postgres: load blocks: %w", err)
	}
	for rows.Next() {
		var convID string
		var bp chat.BlockPair
		if err := rows.Scan(&convID, &bp.Blocker, &bp.Blocked); err != nil {
			rows.Close()
			return fmt.Errorf("postgres: scan block: %w", err)
		}
		if c := byID[convID]; c != nil {
			c.BlockedPairs = append(c.BlockedPairs, bp)
		}
	}
	return closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("postgres: iterate rows: %w", err)
	}
	return rows.Close()
}

// ListForUser implements chat.ConversationStore.
func (s *ConversationStore) ListForUser(ctx context.Context, userID, transportID string) ([]*chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.type, c.transport_id, c.created_by, c.last_message_at, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1 AND ($2 = '' OR c.transport_id = $2)
		ORDER BY c.last_message_at DESC, c.seq`, userID, transportID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}

	out := make([]*chat.Conversation, 0)
	byID := make(map[string]*chat.Conversation)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan conversation: %w", err)
		}
		out = append(out, c)
		byID[c.ID] = c
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	if err := attachMembers(ctx, s.db, byID); err != nil {
		return nil, err
	}
	return out, nil
}

// TouchLastMessage implements chat.ConversationStore.
func (s *ConversationStore) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = $2, updated_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("postgres: touch conversation: %w", err)
	}
	return affected(res, chat.ErrNotFound)
}

// SetLastRead implements chat.ConversationStore.
func (s *ConversationStore) SetLastRead(ctx context.Context, id, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_participants SET last_read_at = $3
		WHERE conversation_id = $1 AND user_id = $2`, id, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("postgres: set last read: %w", err)
	}
	return affected(res, chat.ErrNotFound)
}

// SetMuted implements chat.ConversationStore.
func (s *ConversationStore) SetMuted(ctx context.Context, id, userID string, until *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_participants SET muted_until = $3
		WHERE conversation_id = $1 AND user_id = $2`, id, userID, nullTime(until))
	if err != nil {
		return fmt.Errorf("postgres: set muted: %w", err)
	}
	return affected(res, chat.ErrNotFound)
}

// AddBlock implements chat.ConversationStore.
func (s *ConversationStore) AddBlock(ctx context.Context, id string, pair chat.BlockPair) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return insertBlock(ctx, s.db, id, pair)
}

// RemoveBlock implements chat.ConversationStore.
func (s *ConversationStore) RemoveBlock(ctx context.Context, id string, pair chat.BlockPair) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_blocks
		WHERE conversation_id = $1 AND blocker = $2 AND blocked = $3`, id, pair.Blocker, pair.Blocked)
	if err != nil {
		return fmt.Errorf("postgres: remove block: %w", err)
	}
	return nil
}

func (s *ConversationStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: lookup conversation: %w", err)
	}
	return nil
}
