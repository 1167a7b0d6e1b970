package chat

import (
	"context"
	"time"
)

// ConversationStore persists conversations together with their participant
// and block lists. Implementations return ErrNotFound (possibly wrapped) when
// a lookup or a targeted update matches nothing.
type ConversationStore interface {
	// Create inserts a new conversation.
	Create(ctx context.Context, c *Conversation) error

	// FindOrCreateTransport returns the oldest transport conversation with
	// c.TransportID whose participants include every participant of c, or
	// inserts c when none exists. The lookup and insert are atomic with
	// respect to other FindOrCreateTransport calls. created reports whether c
	// was inserted.
	FindOrCreateTransport(ctx context.Context, c *Conversation) (conv *Conversation, created bool, err error)

	// Get loads a conversation by id.
	Get(ctx context.Context, id string) (*Conversation, error)

	// ListForUser returns conversations that userID participates in,
	// optionally restricted to transportID, newest lastMessageAt first.
	ListForUser(ctx context.Context, userID, transportID string) ([]*Conversation, error)

	// TouchLastMessage sets lastMessageAt.
	TouchLastMessage(ctx context.Context, id string, at time.Time) error

	// SetLastRead sets the participant's lastReadAt. ErrNotFound when userID
	// is not a participant of conversation id.
	SetLastRead(ctx context.Context, id, userID string, at time.Time) error

	// SetMuted sets or clears the participant's mutedUntil.
	SetMuted(ctx context.Context, id, userID string, until *time.Time) error

	// AddBlock adds the pair unless it is already present.
	AddBlock(ctx context.Context, id string, pair BlockPair) error

	// RemoveBlock removes the pair if present.
	RemoveBlock(ctx context.Context, id string, pair BlockPair) error
}

// MessageQuery selects a page of a conversation's history.
type MessageQuery struct {
	Before   *time.Time // strictly older than; takes precedence over After
	After    *time.Time // strictly newer than
	Limit    int
	ViewerID string // messages deleted for this user are skipped
}

// MessageStore persists messages independently of their conversation.
type MessageStore interface {
	// Create inserts a new message.
	Create(ctx context.Context, m *Message) error

	// List returns the selected page in ascending createdAt order (ties in
	// insertion order). With Before set, the page is the newest Limit
	// messages older than the cursor; with After set, the oldest Limit
	// messages newer than it; with neither, the newest Limit messages.
	List(ctx context.Context, conversationID string, q MessageQuery) ([]*Message, error)

	// MarkDeleted adds userID to the message's deletedFor set. ErrNotFound
	// when the message does not belong to the conversation.
	MarkDeleted(ctx context.Context, conversationID, messageID, userID string) error
}
