package chat

import (
	"context"
	"time"
)

// Realtime event names. They double as the server -> client frame types.
const (
	EventMessageNew = "chat:message:new"
	EventTyping     = "chat:typing"
	EventRead       = "chat:read"
)

// Event is the payload published to a conversation's room after a state
// change (or, for typing, on request). It is encoded onto the event bus and
// decoded by the gateway that owns the room.
type Event struct {
	Type           string       `json:"type"`
	ConversationID string       `json:"conversationId"`
	TempID         string       `json:"tempId,omitempty"`  // message events from the realtime path
	Message        *MessageView `json:"message,omitempty"` // message events
	UserID         string       `json:"userId,omitempty"`  // typing and read events
	IsTyping       bool         `json:"isTyping"`          // typing events
	At             *time.Time   `json:"at,omitempty"`      // read events
}

// Publisher delivers events to a conversation's room. Publishing is fire and
// forget: an error is logged by the caller and never undoes persisted state.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
