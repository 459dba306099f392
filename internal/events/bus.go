// Package events provides the in-process event bus used to decouple engine
// components from their observers (websocket stream, maintenance jobs).
package events

import (
	"sync"
	"time"
)

// EventType identifies a category of event
type EventType string

const (
	// PresenceChanged - a musician's derived online state flipped
	PresenceChanged EventType = "presence_changed"
	// BookingConfirmed - a calendar entry won the insert race
	BookingConfirmed EventType = "booking_confirmed"
	// BookingCancelled - a calendar entry was removed
	BookingCancelled EventType = "booking_cancelled"
	// SearchCompleted - a matching search finished (any terminal state)
	SearchCompleted EventType = "search_completed"
	// RateObserved - a completed event's rate was merged into market data
	RateObserved EventType = "rate_observed"
	// MaintenanceCompleted - a scheduled maintenance job finished
	MaintenanceCompleted EventType = "maintenance_completed"
)

// Event is a single emitted event with loosely-typed payload for streaming
type Event struct {
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler is a subscriber callback. Handlers must not block; slow consumers
// should hand off to their own goroutine.
type Handler func(event *Event)

// Bus is a synchronous in-process publish/subscribe bus
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      map[int]Handler // Subscribers to every event type, by id
	nextID   int
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		all:      make(map[int]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type. The returned func
// removes the subscription; connection-scoped subscribers (the websocket
// stream) must call it on disconnect.
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.all[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers an event to all matching handlers synchronously
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	for _, h := range b.all {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
