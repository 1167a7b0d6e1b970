package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/messaging"
	"github.com/tavarakyyti/chat/internal/metrics"
)

// Broadcaster publishes chat events onto the bus. Every gateway subscribed
// to the bus delivers them to its local room members.
type Broadcaster struct {
	bus messaging.Bus
}

// NewBroadcaster creates a Broadcaster over bus.
func NewBroadcaster(bus messaging.Bus) *Broadcaster {
	return &Broadcaster{bus: bus}
}

// Publish implements chat.Publisher.
func (b *Broadcaster) Publish(_ context.Context, ev chat.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode event: %w", err)
	}
	if err := b.bus.PublishChat(ev.ConversationID, data); err != nil {
		return fmt.Errorf("realtime: publish %s: %w", ev.Type, err)
	}
	metrics.EventsTotal.WithLabelValues("published", ev.Type).Inc()
	return nil
}

// Attach subscribes the gateway to the bus.
func (b *Broadcaster) Attach(g *Gateway) error {
	return b.bus.SubscribeChat(g.Deliver)
}
