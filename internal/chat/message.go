package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tavarakyyti/chat/internal/metrics"
)

const (
	// DefaultPageSize is used when a history request has no limit.
	DefaultPageSize = 50

	// MaxPageSize caps a single history page.
	MaxPageSize = 200
)

// Limiter throttles message sends per user. A limiter error fails open.
type Limiter interface {
	AllowMessage(ctx context.Context, userID string) (bool, error)
}

// SendInput is a message send request from either transport.
type SendInput struct {
	ConversationID string
	SenderID       string
	Text           string
	Attachments    []Attachment
	TempID         string // client correlation id, echoed on the realtime event
}

// Page selects a history page. Before wins when both cursors are set.
type Page struct {
	Before *time.Time
	After  *time.Time
	Limit  int
}

// MessageService implements send, history, read receipts and typing for both
// the REST and realtime transports.
type MessageService struct {
	conversations ConversationStore
	messages      MessageStore
	publisher     Publisher
	limiter       Limiter
	now           func() time.Time
}

// NewMessageService creates a MessageService. A nil publisher discards events.
func NewMessageService(conversations ConversationStore, messages MessageStore, publisher Publisher) *MessageService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
		now:           defaultNow,
	}
}

// SetLimiter enables per-user send throttling.
func (s *MessageService) SetLimiter(l Limiter) {
	s.limiter = l
}

// Send validates and persists a message, advances the conversation's
// lastMessageAt and publishes chat:message:new to the room. The event is
// only published after the message is stored.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*MessageView, error) {
	conv, err := loadForParticipant(ctx, s.conversations, in.ConversationID, in.SenderID)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			metrics.MessagesTotal.WithLabelValues("forbidden").Inc()
		}
		return nil, err
	}
	if conv.IsBlocked(in.SenderID) {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		return nil, ErrBlocked
	}

	if s.limiter != nil {
		allowed, err := s.limiter.AllowMessage(ctx, in.SenderID)
		if err != nil {
			log.Printf("chat: limiter error user=%s: %v (allowing)", in.SenderID, err)
		} else if !allowed {
			metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
			return nil, ErrRateLimited
		}
	}

	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Text:           ClipText(in.Text, MaxTextChars),
		Attachments:    append([]Attachment{}, in.Attachments...),
		DeletedFor:     []string{},
		CreatedAt:      s.now(),
	}
	view, err := s.persist(ctx, msg, in.TempID)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	return view, nil
}

// PostSystem stores and publishes a system notice. Block rules do not apply.
func (s *MessageService) PostSystem(ctx context.Context, conversationID, text string) (*MessageView, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}

	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       conv.CreatedBy,
		Text:           ClipText(text, MaxTextChars),
		Attachments:    []Attachment{},
		System:         true,
		DeletedFor:     []string{},
		CreatedAt:      s.now(),
	}
	view, err := s.persist(ctx, msg, "")
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("system").Inc()
	return view, nil
}

func (s *MessageService) persist(ctx context.Context, msg *Message, tempID string) (*MessageView, error) {
	if err := s.messages.Create(ctx, msg); err != nil {
		metrics.MessagesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("chat: store message: %w", err)
	}

	// lastMessageAt is a freshness hint; the message is already durable.
	if err := s.conversations.TouchLastMessage(ctx, msg.ConversationID, msg.CreatedAt); err != nil {
		log.Printf("chat: touch lastMessageAt conversation=%s: %v", msg.ConversationID, err)
	}

	view := msg.View()
	s.publish(ctx, Event{
		Type:           EventMessageNew,
		ConversationID: msg.ConversationID,
		TempID:         tempID,
		Message:        &view,
	})
	return &view, nil
}

// List returns a page of history in ascending createdAt order.
func (s *MessageService) List(ctx context.Context, conversationID, requesterID string, page Page) ([]MessageView, error) {
	if _, err := loadForParticipant(ctx, s.conversations, conversationID, requesterID); err != nil {
		return nil, err
	}

	q := MessageQuery{Limit: clampLimit(page.Limit), ViewerID: requesterID}
	if page.Before != nil {
		q.Before = page.Before
	} else if page.After != nil {
		q.After = page.After
	}

	msgs, err := s.messages.List(ctx, conversationID, q)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.View())
	}
	return out, nil
}

// MarkRead sets userID's lastReadAt (now when at is nil) and publishes
// chat:read. It fails with ErrNotFound when userID is not a participant.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, userID string, at *time.Time) (time.Time, error) {
	if userID == "" {
		return time.Time{}, ErrUnauthorized
	}
	readAt := s.now()
	if at != nil {
		readAt = at.UTC()
	}

	if err := s.conversations.SetLastRead(ctx, conversationID, userID, readAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("chat: mark read: %w", err)
	}

	s.publish(ctx, Event{
		Type:           EventRead,
		ConversationID: conversationID,
		UserID:         userID,
		At:             &readAt,
	})
	return readAt, nil
}

// Typing relays a typing indicator to the room. Nothing is persisted.
func (s *MessageService) Typing(ctx context.Context, conversationID, userID string, isTyping bool) {
	if conversationID == "" || userID == "" {
		return
	}
	s.publish(ctx, Event{
		Type:           EventTyping,
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
}

// DeleteForUser hides a message from userID's history only.
func (s *MessageService) DeleteForUser(ctx context.Context, conversationID, messageID, userID string) error {
	if _, err := loadForParticipant(ctx, s.conversations, conversationID, userID); err != nil {
		return err
	}
	if messageID == "" {
		return ErrInvalidPayload
	}
	if err := s.messages.MarkDeleted(ctx, conversationID, messageID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("chat: delete message: %w", err)
	}
	return nil
}

func (s *MessageService) publish(ctx context.Context, ev Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("chat: publish %s conversation=%s: %v", ev.Type, ev.ConversationID, err)
	}
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}
