// Package protocol defines the WebSocket frames exchanged between chat
// clients and the server. All frames are JSON objects with a "type"
// discriminator; payload fields sit next to it at the top level.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tavarakyyti/chat/internal/chat"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoin    = "chat:join"
	TypeLeave   = "chat:leave"
	TypeTyping  = "chat:typing"
	TypeMessage = "chat:message"
	TypeRead    = "chat:read"
	TypePing    = "ping"
)

// Server -> Client message types. Typing and read reuse the client names.
const (
	TypeMessageNew = chat.EventMessageNew
	TypeError      = "error"
	TypePong       = "pong"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It keeps the full
// raw bytes and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinMsg subscribes the connection to a conversation's room.
type JoinMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// LeaveMsg unsubscribes the connection from a conversation's room.
type LeaveMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// TypingMsg indicates whether the client is currently typing.
type TypingMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// ChatMsg sends a message. TempID is echoed back on chat:message:new so the
// client can reconcile its optimistic copy.
type ChatMsg struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversationId"`
	Text           string            `json:"text"`
	Attachments    []chat.Attachment `json:"attachments,omitempty"`
	TempID         string            `json:"tempId"`
}

// ReadMsg marks the conversation read up to At, or now when At is absent.
type ReadMsg struct {
	Type           string     `json:"type"`
	ConversationID string     `json:"conversationId"`
	At             *time.Time `json:"at,omitempty"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// MessageNewMsg delivers a newly persisted message to a room.
type MessageNewMsg struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversationId"`
	TempID         string            `json:"tempId,omitempty"`
	Message        *chat.MessageView `json:"message"`
}

// ServerTypingMsg relays a participant's typing indicator.
type ServerTypingMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// ServerReadMsg relays a read receipt.
type ServerReadMsg struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	At             time.Time `json:"at"`
}

// ErrorMsg reports a malformed frame. Service failures are never reported.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeave:
		var m LeaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRead:
		var m ReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

// FromEvent converts a published chat event into the frame delivered to room
// members.
func FromEvent(ev chat.Event) ([]byte, error) {
	switch ev.Type {
	case chat.EventMessageNew:
		if ev.Message == nil {
			return nil, fmt.Errorf("protocol: %s event without message", ev.Type)
		}
		return NewServerMessage(TypeMessageNew, MessageNewMsg{
			ConversationID: ev.ConversationID,
			TempID:         ev.TempID,
			Message:        ev.Message,
		})
	case chat.EventTyping:
		return NewServerMessage(TypeTyping, ServerTypingMsg{
			ConversationID: ev.ConversationID,
			UserID:         ev.UserID,
			IsTyping:       ev.IsTyping,
		})
	case chat.EventRead:
		var at time.Time
		if ev.At != nil {
			at = *ev.At
		}
		return NewServerMessage(TypeRead, ServerReadMsg{
			ConversationID: ev.ConversationID,
			UserID:         ev.UserID,
			At:             at,
		})
	default:
		return nil, fmt.Errorf("protocol: unknown event type %q", ev.Type)
	}
}
