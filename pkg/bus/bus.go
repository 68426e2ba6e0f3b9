// Package bus decouples inbound message producers (webhooks, tests, future
// transports) from the conversation manager that consumes them.
package bus

import (
	"sync"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/logger"
)

// InboundMessage is one actor utterance on its way into the state machine.
type InboundMessage struct {
	OrderID  string           `json:"order_id"`
	Actor    domain.ActorType `json:"actor"`
	ActorID  string           `json:"actor_id"`
	Content  string           `json:"content"`
	Language domain.Language  `json:"language,omitempty"`
	Metadata domain.Metadata  `json:"metadata,omitempty"`
}

// MessageBus is a buffered fan-in for inbound messages. Producers never
// block: when the buffer is full the message is dropped and logged, which is
// acceptable for webhook traffic that the sender will retry.
type MessageBus struct {
	inbound chan InboundMessage

	mu     sync.Mutex
	closed bool
}

// New creates a message bus with the given buffer size.
func New(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &MessageBus{inbound: make(chan InboundMessage, buffer)}
}

// PublishInbound offers a message to the bus. Returns false if it was
// dropped because the bus is closed or full.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	// The lock covers the send so a concurrent Close cannot close the
	// channel mid-publish.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}

	select {
	case b.inbound <- msg:
		return true
	default:
		logger.WarnCF("bus", "Inbound buffer full, message dropped", map[string]interface{}{
			"order_id": msg.OrderID,
			"actor":    msg.Actor.String(),
		})
		return false
	}
}

// Inbound returns the consumer side of the bus.
func (b *MessageBus) Inbound() <-chan InboundMessage { return b.inbound }

// Close stops the bus. Pending buffered messages remain readable until
// drained; the channel is then closed for consumers.
func (b *MessageBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.inbound)
}
