package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tavarakyyti/chat/internal/chat"
)

// MessageStore keeps each conversation's messages sorted by createdAt, ties
// in insertion order.
type MessageStore struct {
	mu     sync.RWMutex
	byConv map[string][]*chat.Message
}

// NewMessageStore creates an empty MessageStore.
func NewMessageStore() *MessageStore {
	return &MessageStore{byConv: make(map[string][]*chat.Message)}
}

// Create implements chat.MessageStore.
func (s *MessageStore) Create(ctx context.Context, m *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.byConv[m.ConversationID]
	// Insert after every message with createdAt <= m.CreatedAt.
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].CreatedAt.After(m.CreatedAt)
	})
	msgs = append(msgs, nil)
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m.Clone()
	s.byConv[m.ConversationID] = msgs
	return nil
}

// List implements chat.MessageStore.
func (s *MessageStore) List(ctx context.Context, conversationID string, q chat.MessageQuery) ([]*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := make([]*chat.Message, 0)
	for _, m := range s.byConv[conversationID] {
		if q.ViewerID != "" && m.DeletedForUser(q.ViewerID) {
			continue
		}
		switch {
		case q.Before != nil:
			if !m.CreatedAt.Before(*q.Before) {
				continue
			}
		case q.After != nil:
			if !m.CreatedAt.After(*q.After) {
				continue
			}
		}
		visible = append(visible, m)
	}

	if q.Limit > 0 && len(visible) > q.Limit {
		if q.After != nil && q.Before == nil {
			visible = visible[:q.Limit]
		} else {
			visible = visible[len(visible)-q.Limit:]
		}
	}

	out := make([]*chat.Message, len(visible))
	for i, m := range visible {
		out[i] = m.Clone()
	}
	return out, nil
}

// MarkDeleted implements chat.MessageStore.
func (s *MessageStore) MarkDeleted(ctx context.Context, conversationID, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.byConv[conversationID] {
		if m.ID != messageID {
			continue
		}
		if !m.DeletedForUser(userID) {
			m.DeletedFor = append(m.DeletedFor, userID)
		}
		return nil
	}
	return chat.ErrNotFound
}
