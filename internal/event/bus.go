package event

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler is a function that handles a published event.
type Handler func(Event)

// subscription ties a handler to the event type it listens for.
type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous pub-sub event bus. Components publish state-change
// events to it and observers subscribe by event type, keeping publishers
// and subscribers free of direct dependencies on each other.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription // event type -> subscriptions, "*" for wildcard
	nextID atomic.Uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for the given event type.
// The returned id can be passed to Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers a handler that receives every published event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a subscription by id. Returns false if the id is unknown.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		for i, sub := range subs {
			if sub.id == id {
				b.subs[eventType] = append(subs[:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish delivers the event to handlers subscribed to its type, then to
// wildcard handlers, in registration order. Handler panics are recovered
// and logged so one bad handler cannot stop delivery to the rest.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	typed := make([]subscription, len(b.subs[e.EventType()]))
	copy(typed, b.subs[e.EventType()])
	wildcard := make([]subscription, len(b.subs["*"]))
	copy(wildcard, b.subs["*"])
	b.mu.RUnlock()

	for _, sub := range typed {
		b.dispatch(sub.handler, e)
	}
	for _, sub := range wildcard {
		b.dispatch(sub.handler, e)
	}
}

// dispatch invokes a handler, recovering and logging any panic.
func (b *Bus) dispatch(handler Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: event handler panicked for %s: %v\n%s",
				e.EventType(), r, debug.Stack())
		}
	}()
	handler(e)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}
