package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Subscriber receives events published to the bus. Handlers must not
// block; the bus calls them synchronously from Emit.
type Subscriber func(event *EventWithData)

// Bus fans out task lifecycle events to SSE stream handlers. Emit is
// synchronous over its subscriber list, so subscriber handlers are
// expected to forward onto their own buffered channel rather than do
// any blocking work themselves.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]Subscriber
	nextID      int
	log         zerolog.Logger
}

// NewBus builds an empty Bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]Subscriber),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers fn and returns a token to pass to Unsubscribe.
func (b *Bus) Subscribe(fn Subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	return id
}

// Unsubscribe removes a previously registered subscriber.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Emit publishes data to every current subscriber.
func (b *Bus) Emit(data EventData) {
	event := &EventWithData{Type: data.EventType(), Timestamp: time.Now(), Data: data}

	b.mu.RLock()
	handlers := make([]Subscriber, 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	b.log.Debug().Str("event_type", string(event.Type)).Int("subscribers", len(handlers)).Msg("emitting event")
	for _, fn := range handlers {
		fn(event)
	}
}

// SubscriberCount reports the current number of live subscribers, used
// by status/health endpoints.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
