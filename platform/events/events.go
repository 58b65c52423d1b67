// Package events provides event bus infrastructure for decoupled,
// event-driven communication between modules.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"sync"
	"time"
)

// Event is the base interface all domain events must implement.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus is the interface for publishing and subscribing to domain events.
type Bus interface {
	// Publish sends an event to all registered handlers for that event type.
	// Handlers are executed asynchronously by default.
	Publish(ctx context.Context, event Event)

	// PublishSync sends an event and waits for all handlers to complete.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for a specific event type.
	// The eventName should match the value returned by Event.EventName().
	Subscribe(eventName string, handler Handler)
}

// ErrorLogger is the minimal logging surface the bus needs to report
// failed or panicking handlers.
type ErrorLogger interface {
	Error(msg string, args ...any)
}

// InMemoryBus is a process-local Bus. Handlers registered for an event name
// run in registration order; Publish detaches them onto a goroutine so the
// publisher never blocks on observers.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      ErrorLogger
}

// NewInMemoryBus creates an in-process event bus.
func NewInMemoryBus(log ErrorLogger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to all subscribed handlers on a new goroutine.
// The goroutine is detached from the caller's context cancellation: an event
// that was published must reach its observers even when the request that
// produced it has already returned.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	if event == nil {
		return
	}
	go func() {
		if err := b.dispatch(context.WithoutCancel(ctx), event); err != nil && b.log != nil {
			b.log.Error("event handler failed", "event", event.EventName(), "error", err)
		}
	}()
}

// PublishSync dispatches the event and waits for all handlers to complete.
// The first handler error is returned; remaining handlers still run.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	if event == nil {
		return nil
	}
	return b.dispatch(ctx, event)
}

func (b *InMemoryBus) dispatch(ctx context.Context, event Event) error {
	b.mu.RLock()
	registered := b.handlers[event.EventName()]
	handlers := make([]Handler, len(registered))
	copy(handlers, registered)
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := b.safeHandle(ctx, handler, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// safeHandle isolates handler panics so one broken observer cannot take
// down the publisher or the other handlers.
func (b *InMemoryBus) safeHandle(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if b.log != nil {
				b.log.Error("event handler panicked", "event", event.EventName(), "panic", r)
			}
		}
	}()
	return handler.Handle(ctx, event)
}
