package messaging

import "sync"

// LocalBus delivers events synchronously to handlers in the same process.
// It is used when no NATS URL is configured. Handlers must not block; the
// gateway only queues frames on each connection.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []func(conversationID string, data []byte)
	closed   bool
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// PublishChat implements Bus.
func (b *LocalBus) PublishChat(conversationID string, data []byte) error {
	if _, err := ChatSubject(conversationID); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := b.handlers
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil
	}
	for _, h := range handlers {
		h(conversationID, data)
	}
	return nil
}

// SubscribeChat implements Bus.
func (b *LocalBus) SubscribeChat(handler func(conversationID string, data []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}

// Close stops delivery.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
}
