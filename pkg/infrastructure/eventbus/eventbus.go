// Package eventbus provides the in-process domain event bus implementation.
package eventbus

import (
	"sync"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/logger"
)

// InProcessEventBus dispatches events synchronously to registered handlers.
// A panicking handler is isolated so it cannot break other subscribers or
// the publisher.
type InProcessEventBus struct {
	mu          sync.RWMutex
	handlers    map[domain.EventType][]domain.EventHandler
	allHandlers []domain.EventHandler
	closed      bool
}

var _ domain.EventBus = (*InProcessEventBus)(nil)

// New creates an in-process event bus.
func New() *InProcessEventBus {
	return &InProcessEventBus{
		handlers: make(map[domain.EventType][]domain.EventHandler),
	}
}

// Publish dispatches the event to type-specific handlers, then wildcard ones.
func (b *InProcessEventBus) Publish(event domain.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	typed := make([]domain.EventHandler, len(b.handlers[event.EventType()]))
	copy(typed, b.handlers[event.EventType()])
	wildcard := make([]domain.EventHandler, len(b.allHandlers))
	copy(wildcard, b.allHandlers)
	b.mu.RUnlock()

	for _, h := range typed {
		b.invoke(h, event)
	}
	for _, h := range wildcard {
		b.invoke(h, event)
	}
}

func (b *InProcessEventBus) invoke(h domain.EventHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("eventbus", "Event handler panicked", map[string]interface{}{
				"event": string(event.EventType()),
				"panic": r,
			})
		}
	}()
	h(event)
}

// Subscribe registers a handler for one event type.
func (b *InProcessEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *InProcessEventBus) SubscribeAll(handler domain.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Close stops dispatching. Subsequent publishes are dropped silently.
func (b *InProcessEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[domain.EventType][]domain.EventHandler)
	b.allHandlers = nil
}
