// Package realtime is the room layer on top of the WebSocket transport. Each
// conversation is a room; connections join rooms after a membership check
// and receive every message, typing and read event published to them. The
// gateway never re-implements authorization or persistence: it forwards
// client events to the chat services and fans published events out.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/identity"
	"github.com/tavarakyyti/chat/internal/metrics"
	"github.com/tavarakyyti/chat/internal/protocol"
	"github.com/tavarakyyti/chat/internal/ws"
)

// Client is a connection the gateway can deliver frames to. Send must not
// block on the network; Closed reports a connection that is already torn down.
type Client interface {
	ConnID() string
	Identity() identity.Identity
	Send(data []byte) error
	Closed() bool
}

// Conversations is the membership lookup used by Join.
type Conversations interface {
	Get(ctx context.Context, id, requesterID string) (*chat.Conversation, error)
}

// Messages is the subset of the message service driven by client events.
type Messages interface {
	Send(ctx context.Context, in chat.SendInput) (*chat.MessageView, error)
	MarkRead(ctx context.Context, conversationID, userID string, at *time.Time) (time.Time, error)
	Typing(ctx context.Context, conversationID, userID string, isTyping bool)
}

// Gateway owns the room membership table. Only Join, Leave and Disconnect
// mutate it.
type Gateway struct {
	conversations Conversations
	messages      Messages
	timeout       time.Duration

	mu sync.RWMutex
	// conversationID -> connID -> client
	rooms map[string]map[string]Client
	// connID -> joined conversationIDs
	joined map[string]map[string]struct{}
	// connID -> joins waiting on the membership lookup
	pending map[string]int
	// connections disconnected while a join was pending
	dropped map[string]struct{}
}

// NewGateway creates a Gateway backed by the chat services.
func NewGateway(conversations Conversations, messages Messages) *Gateway {
	return &Gateway{
		conversations: conversations,
		messages:      messages,
		timeout:       5 * time.Second,
		rooms:         make(map[string]map[string]Client),
		joined:        make(map[string]map[string]struct{}),
		pending:       make(map[string]int),
		dropped:       make(map[string]struct{}),
	}
}

// Join subscribes c to the conversation's room if its user is a participant.
// Failures are silent so that non-participants cannot probe for
// conversation ids.
func (g *Gateway) Join(ctx context.Context, c Client, conversationID string) bool {
	if conversationID == "" {
		return false
	}
	connID := c.ConnID()
	g.mu.Lock()
	g.pending[connID]++
	g.mu.Unlock()

	_, err := g.conversations.Get(ctx, conversationID, c.Identity().UserID)

	g.mu.Lock()
	defer g.mu.Unlock()
	_, gone := g.dropped[connID]
	g.pending[connID]--
	if g.pending[connID] <= 0 {
		delete(g.pending, connID)
		delete(g.dropped, connID)
	}
	if err != nil {
		log.Printf("realtime: join denied conn=%s user=%s conversation=%s: %v",
			connID, c.Identity().UserID, conversationID, err)
		return false
	}
	if gone || c.Closed() {
		log.Printf("realtime: join abandoned conn=%s conversation=%s: connection closed", connID, conversationID)
		return false
	}

	room, ok := g.rooms[conversationID]
	if !ok {
		room = make(map[string]Client)
		g.rooms[conversationID] = room
		metrics.RoomsActive.Inc()
	}
	room[connID] = c

	set, ok := g.joined[connID]
	if !ok {
		set = make(map[string]struct{})
		g.joined[connID] = set
	}
	set[conversationID] = struct{}{}
	return true
}

// Leave unsubscribes the connection from a room. Leaving a room that was
// never joined is a no-op.
func (g *Gateway) Leave(connID, conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(connID, conversationID)
}

// Disconnect drops every room subscription held by the connection. A join
// still waiting on its lookup is abandoned.
func (g *Gateway) Disconnect(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending[connID] > 0 {
		g.dropped[connID] = struct{}{}
	}
	for conversationID := range g.joined[connID] {
		g.leaveLocked(connID, conversationID)
	}
	delete(g.joined, connID)
}

func (g *Gateway) leaveLocked(connID, conversationID string) {
	if room, ok := g.rooms[conversationID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(g.rooms, conversationID)
			metrics.RoomsActive.Dec()
		}
	}
	if set, ok := g.joined[connID]; ok {
		delete(set, conversationID)
		if len(set) == 0 {
			delete(g.joined, connID)
		}
	}
}

// Members returns the number of connections in a room.
func (g *Gateway) Members(conversationID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[conversationID])
}

// Typing relays a typing indicator. Nothing beyond an authenticated
// connection is required.
func (g *Gateway) Typing(ctx context.Context, c Client, conversationID string, isTyping bool) {
	g.messages.Typing(ctx, conversationID, c.Identity().UserID, isTyping)
}

// Send forwards a message to the message service, which persists it and
// publishes chat:message:new with tempID. Failures are dropped; clients that
// need confirmation use the REST endpoint.
func (g *Gateway) Send(ctx context.Context, c Client, msg protocol.ChatMsg) {
	_, err := g.messages.Send(ctx, chat.SendInput{
		ConversationID: msg.ConversationID,
		SenderID:       c.Identity().UserID,
		Text:           msg.Text,
		Attachments:    msg.Attachments,
		TempID:         msg.TempID,
	})
	if err != nil {
		metrics.EventsTotal.WithLabelValues("dropped", protocol.TypeMessage).Inc()
		log.Printf("realtime: send dropped conn=%s conversation=%s: %v", c.ConnID(), msg.ConversationID, err)
	}
}

// Read forwards a read receipt. Failures are dropped.
func (g *Gateway) Read(ctx context.Context, c Client, conversationID string, at *time.Time) {
	if _, err := g.messages.MarkRead(ctx, conversationID, c.Identity().UserID, at); err != nil {
		metrics.EventsTotal.WithLabelValues("dropped", protocol.TypeRead).Inc()
		log.Printf("realtime: read dropped conn=%s conversation=%s: %v", c.ConnID(), conversationID, err)
	}
}

// Deliver queues an encoded event on every member of its room. It is the
// bus subscription handler and never waits on a member's socket.
func (g *Gateway) Deliver(conversationID string, data []byte) {
	var ev chat.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("realtime: bad event on conversation=%s: %v", conversationID, err)
		return
	}
	frame, err := protocol.FromEvent(ev)
	if err != nil {
		log.Printf("realtime: encode event conversation=%s: %v", conversationID, err)
		return
	}

	g.mu.RLock()
	members := make([]Client, 0, len(g.rooms[conversationID]))
	for _, c := range g.rooms[conversationID] {
		members = append(members, c)
	}
	g.mu.RUnlock()

	for _, c := range members {
		if err := c.Send(frame); err != nil {
			log.Printf("realtime: deliver conn=%s conversation=%s: %v", c.ConnID(), conversationID, err)
			continue
		}
		metrics.EventsTotal.WithLabelValues("delivered", ev.Type).Inc()
	}
}

// Register wires the client event handlers into the dispatcher.
func (g *Gateway) Register(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeJoin, func(conn *ws.Connection, msg interface{}) {
		m := msg.(protocol.JoinMsg)
		ctx, cancel := g.context()
		defer cancel()
		g.Join(ctx, conn, m.ConversationID)
	})
	d.Register(protocol.TypeLeave, func(conn *ws.Connection, msg interface{}) {
		g.Leave(conn.ConnID(), msg.(protocol.LeaveMsg).ConversationID)
	})
	d.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		m := msg.(protocol.TypingMsg)
		ctx, cancel := g.context()
		defer cancel()
		g.Typing(ctx, conn, m.ConversationID, m.IsTyping)
	})
	d.Register(protocol.TypeMessage, func(conn *ws.Connection, msg interface{}) {
		ctx, cancel := g.context()
		defer cancel()
		g.Send(ctx, conn, msg.(protocol.ChatMsg))
	})
	d.Register(protocol.TypeRead, func(conn *ws.Connection, msg interface{}) {
		m := msg.(protocol.ReadMsg)
		ctx, cancel := g.context()
		defer cancel()
		g.Read(ctx, conn, m.ConversationID, m.At)
	})
}

func (g *Gateway) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.timeout)
}
