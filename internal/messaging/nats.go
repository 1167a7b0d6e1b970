// Package messaging carries room events between chat server instances. With
// NATS configured, every instance publishes to chat.<conversationId> and
// subscribes to chat.*, so a message accepted on one node reaches sockets
// held by any other. Without NATS the LocalBus delivers in-process.
package messaging

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns.
const (
	SubjectChat         = "chat"   // + .<conversation_id>
	SubjectChatWildcard = "chat.*" // every room
)

// ErrInvalidConversationID is returned for ids that cannot form a single
// NATS subject token.
var ErrInvalidConversationID = errors.New("messaging: invalid conversation id")

// Bus fans room events out to every subscribed gateway.
type Bus interface {
	// PublishChat sends data to the conversation's room.
	PublishChat(conversationID string, data []byte) error

	// SubscribeChat registers handler for events on every room.
	SubscribeChat(handler func(conversationID string, data []byte)) error

	Close()
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "chatserver",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// ChatSubject returns the subject for a conversation's room.
func ChatSubject(conversationID string) (string, error) {
	if conversationID == "" || strings.ContainsAny(conversationID, ".*> \t\r\n") {
		return "", ErrInvalidConversationID
	}
	return SubjectChat + "." + conversationID, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if old, ok := c.subs[subject]; ok {
		old.Unsubscribe()
	}
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishChat implements Bus.
func (c *NATSClient) PublishChat(conversationID string, data []byte) error {
	subject, err := ChatSubject(conversationID)
	if err != nil {
		return err
	}
	return c.Publish(subject, data)
}

// SubscribeChat implements Bus. The conversation id is recovered from the
// last subject token.
func (c *NATSClient) SubscribeChat(handler func(conversationID string, data []byte)) error {
	return c.Subscribe(SubjectChatWildcard, func(msg *nats.Msg) {
		id := strings.TrimPrefix(msg.Subject, SubjectChat+".")
		handler(id, msg.Data)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
