// Package broadcast implements an in-process, best-effort fan-out of
// matching engine events to SSE subscribers, grounded on the §6.3
// "slow or disconnected subscriber is dropped silently" delivery rule.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
)

// Message is the wire envelope for one SSE event.
type Message struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"-"`
}

// subscriberBuffer bounds how far a subscriber may lag before it is
// dropped rather than blocking the publisher.
const subscriberBuffer = 256

// Channel names, matching the three GET /events/{channel} routes.
const (
	ChannelTrades    = "trades"
	ChannelOrderBook = "orderbook"
	ChannelOrders    = "orders"
)

// Broadcaster implements domain.EventPublisher by fanning events out to
// per-channel subscriber sets. Publishing never blocks: a subscriber
// whose buffer is full is unregistered and its channel closed.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Message]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: map[string]map[chan Message]struct{}{
			ChannelTrades:    make(map[chan Message]struct{}),
			ChannelOrderBook: make(map[chan Message]struct{}),
			ChannelOrders:    make(map[chan Message]struct{}),
		},
	}
}

// Subscribe registers a new subscriber on channel and returns a receive
// channel plus an unsubscribe function the caller must invoke when done
// (typically on HTTP client disconnect).
func (b *Broadcaster) Subscribe(channel string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[channel][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[channel][ch]; ok {
			delete(b.subscribers[channel], ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

func (b *Broadcaster) publish(channel, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := Message{EventType: eventType, Payload: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[channel] {
		select {
		case ch <- msg:
		default:
			// Subscriber fell behind; drop it rather than block the
			// matching engine's single writer goroutine.
			delete(b.subscribers[channel], ch)
			close(ch)
		}
	}
}

func (b *Broadcaster) PublishTrade(_ context.Context, trade *domain.Trade) {
	b.publish(ChannelTrades, "trade", trade)
}

func (b *Broadcaster) PublishOrderStateChange(_ context.Context, order *domain.Order) {
	b.publish(ChannelOrders, "order_state_change", order)
}

func (b *Broadcaster) PublishBookDelta(_ context.Context, snapshot *domain.OrderBookSnapshot) {
	b.publish(ChannelOrderBook, "orderbook_delta", snapshot)
}
