// Package bus is a small synchronous publish/subscribe hub decoupling the
// feed core from its consumers. Delivery is in registration order on the
// publisher's goroutine; no asynchronous fan-out.
package bus

import "sync"

// Topic names the event streams exposed to consumers.
type Topic string

const (
	// TopicConnected carries a bool: feed session up or down.
	TopicConnected Topic = "connected"
	// TopicBook carries a book.State after every book mutation.
	TopicBook Topic = "book"
	// TopicPriceChange carries the raw delta that was applied.
	TopicPriceChange Topic = "price_change"
	// TopicTrade carries a trade print.
	TopicTrade Topic = "trade"
	// TopicError carries an ErrorEvent.
	TopicError Topic = "error"
	// TopicStatus carries control-frame payloads (acks, heartbeats, status).
	TopicStatus Topic = "status"
	// TopicMaxReconnect carries a bool, emitted once when the reconnect
	// attempt ceiling is exhausted.
	TopicMaxReconnect Topic = "max_reconnect_attempts_reached"
)

// ErrorEvent is the payload for TopicError.
type ErrorEvent struct {
	Code    string
	Message string
}

// Handler receives published events. Handlers run synchronously; a slow
// handler stalls the dispatch loop.
type Handler func(event any)

type subscriber struct {
	id int
	fn Handler
}

// Bus routes published events to per-topic subscriber lists.
// Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]subscriber
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscriber)}
}

// Subscribe registers fn for topic and returns a token for Unsubscribe.
// Multiple subscribers per topic are supported; delivery follows
// registration order.
func (b *Bus) Subscribe(topic Topic, fn Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscriber{id: b.nextID, fn: fn})
	return b.nextID
}

// Unsubscribe removes the subscription identified by token. Unknown tokens
// are a no-op.
func (b *Bus) Unsubscribe(topic Topic, token int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[topic]
	for i, s := range list {
		if s.id == token {
			b.subs[topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every subscriber of topic, synchronously, in
// registration order.
func (b *Bus) Publish(topic Topic, event any) {
	b.mu.RLock()
	list := make([]subscriber, len(b.subs[topic]))
	copy(list, b.subs[topic])
	b.mu.RUnlock()

	for _, s := range list {
		s.fn(event)
	}
}
