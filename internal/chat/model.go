// Package chat implements the conversation and message core: the domain
// model, participant and block rules, and the services that both the REST
// API and the realtime gateway call into. Transports never re-implement
// these rules; they translate requests into service calls.
package chat

import "time"

// ConversationType distinguishes direct pairings from transport-scoped threads.
type ConversationType string

const (
	TypeDirect    ConversationType = "direct"
	TypeTransport ConversationType = "transport"
)

// Valid reports whether t is a known conversation type.
func (t ConversationType) Valid() bool {
	return t == TypeDirect || t == TypeTransport
}

// Role is a participant's role within a conversation.
type Role string

const (
	RoleReceiver Role = "receiver"
	RoleCarrier  Role = "carrier"
	RoleOther    Role = "other"
)

// Participant binds a user to a conversation together with its read state.
type Participant struct {
	UserID     string     `json:"userId"`
	Role       Role       `json:"role"`
	LastReadAt *time.Time `json:"lastReadAt"`
	MutedUntil *time.Time `json:"mutedUntil"`
}

// BlockPair is a directional restriction: Blocked may no longer deliver
// messages into the conversation.
type BlockPair struct {
	Blocker string `json:"blocker"`
	Blocked string `json:"blocked"`
}

// Conversation is a persistent thread with a fixed type and participant set.
type Conversation struct {
	ID            string           `json:"id"`
	Type          ConversationType `json:"type"`
	TransportID   string           `json:"transportId,omitempty"`
	Participants  []Participant    `json:"participants"`
	CreatedBy     string           `json:"createdBy"`
	LastMessageAt time.Time        `json:"lastMessageAt"`
	BlockedPairs  []BlockPair      `json:"blockedPairs"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// IsParticipant reports whether userID is one of the conversation's participants.
func (c *Conversation) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// IsBlocked reports whether senderID appears as the blocked side of any pair.
// Only the stored direction is checked; mutual blocking needs both pairs.
func (c *Conversation) IsBlocked(senderID string) bool {
	for _, bp := range c.BlockedPairs {
		if bp.Blocked == senderID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the participant user ids in stored order.
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasAll reports whether every id in userIDs is a participant.
func (c *Conversation) HasAll(userIDs []string) bool {
	for _, id := range userIDs {
		if !c.IsParticipant(id) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so that callers cannot mutate stored state.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = make([]Participant, len(c.Participants))
	for i, p := range c.Participants {
		out.Participants[i] = p
		out.Participants[i].LastReadAt = cloneTime(p.LastReadAt)
		out.Participants[i].MutedUntil = cloneTime(p.MutedUntil)
	}
	out.BlockedPairs = append([]BlockPair{}, c.BlockedPairs...)
	return &out
}

// Attachment is object-storage metadata carried by a message.
type Attachment struct {
	URL  string `json:"url"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
	Name string `json:"name"`
}

// Message is a single persisted chat message. Messages are immutable except
// for growth of DeletedFor.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	Attachments    []Attachment
	System         bool
	DeletedFor     []string
	CreatedAt      time.Time
}

// DeletedForUser reports whether userID has hidden this message.
func (m *Message) DeletedForUser(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	out := *m
	out.Attachments = append([]Attachment{}, m.Attachments...)
	out.DeletedFor = append([]string{}, m.DeletedFor...)
	return &out
}

// View returns the sanitized form of the message that is safe to hand to
// clients. Soft-delete markers never leave the core.
func (m *Message) View() MessageView {
	atts := m.Attachments
	if atts == nil {
		atts = []Attachment{}
	}
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Attachments:    atts,
		System:         m.System,
		CreatedAt:      m.CreatedAt,
	}
}

// MessageView is the sanitized message representation.
type MessageView struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Text           string       `json:"text"`
	Attachments    []Attachment `json:"attachments"`
	System         bool         `json:"system"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
