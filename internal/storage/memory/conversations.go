// Package memory provides goroutine-safe in-process implementations of the
// chat and report stores. It backs the "memory" store driver for local
// development and is the fixture store for service and API tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tavarakyyti/chat/internal/chat"
)

// ConversationStore keeps conversations in a map keyed by id. Every read
// returns a deep copy.
type ConversationStore struct {
	mu    sync.RWMutex
	byID  map[string]*chat.Conversation
	order []string // insertion order, used for oldest-first dedup lookups
}

// NewConversationStore creates an empty ConversationStore.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{byID: make(map[string]*chat.Conversation)}
}

// Create implements chat.ConversationStore.
func (s *ConversationStore) Create(ctx context.Context, c *chat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(c)
	return nil
}

// FindOrCreateTransport implements chat.ConversationStore.
func (s *ConversationStore) FindOrCreateTransport(ctx context.Context, c *chat.Conversation) (*chat.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := c.ParticipantIDs()
	for _, id := range s.order {
		existing := s.byID[id]
		if existing.Type == chat.TypeTransport &&
			existing.TransportID == c.TransportID &&
			existing.HasAll(want) {
			return existing.Clone(), false, nil
		}
	}
	s.insertLocked(c)
	return c.Clone(), true, nil
}

func (s *ConversationStore) insertLocked(c *chat.Conversation) {
	s.byID[c.ID] = c.Clone()
	s.order = append(s.order, c.ID)
}

// Get implements chat.ConversationStore.
func (s *ConversationStore) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return c.Clone(), nil
}

// ListForUser implements chat.ConversationStore.
func (s *ConversationStore) ListForUser(ctx context.Context, userID, transportID string) ([]*chat.Conversation, error) {
	s.mu.RLock()
	out := make([]*chat.Conversation, 0)
	for _, id := range s.order {
		c := s.byID[id]
		if !c.IsParticipant(userID) {
			continue
		}
		if transportID != "" && c.TransportID != transportID {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

// TouchLastMessage implements chat.ConversationStore.
func (s *ConversationStore) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(c *chat.Conversation) error {
		c.LastMessageAt = at
		c.UpdatedAt = at
		return nil
	})
}

// SetLastRead implements chat.ConversationStore.
func (s *ConversationStore) SetLastRead(ctx context.Context, id, userID string, at time.Time) error {
	return s.updateParticipant(id, userID, func(p *chat.Participant) {
		v := at
		p.LastReadAt = &v
	})
}

// SetMuted implements chat.ConversationStore.
func (s *ConversationStore) SetMuted(ctx context.Context, id, userID string, until *time.Time) error {
	return s.updateParticipant(id, userID, func(p *chat.Participant) {
		if until == nil {
			p.MutedUntil = nil
			return
		}
		v := *until
		p.MutedUntil = &v
	})
}

// AddBlock implements chat.ConversationStore.
func (s *ConversationStore) AddBlock(ctx context.Context, id string, pair chat.BlockPair) error {
	return s.update(id, func(c *chat.Conversation) error {
		for _, bp := range c.BlockedPairs {
			if bp == pair {
				return nil
			}
		}
		c.BlockedPairs = append(c.BlockedPairs, pair)
		c.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// RemoveBlock implements chat.ConversationStore.
func (s *ConversationStore) RemoveBlock(ctx context.Context, id string, pair chat.BlockPair) error {
	return s.update(id, func(c *chat.Conversation) error {
		kept := c.BlockedPairs[:0]
		for _, bp := range c.BlockedPairs {
			if bp != pair {
				kept = append(kept, bp)
			}
		}
		c.BlockedPairs = kept
		c.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (s *ConversationStore) update(id string, fn func(c *chat.Conversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return chat.ErrNotFound
	}
	return fn(c)
}

func (s *ConversationStore) updateParticipant(id, userID string, fn func(p *chat.Participant)) error {
	return s.update(id, func(c *chat.Conversation) error {
		for i := range c.Participants {
			if c.Participants[i].UserID == userID {
				fn(&c.Participants[i])
				return nil
			}
		}
		return chat.ErrNotFound
	})
}
