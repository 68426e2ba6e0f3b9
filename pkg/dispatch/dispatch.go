// Package dispatch routes notification bodies to channel senders. The queue
// only ever sees the Registry; providers are registered at wire-up time so
// tests can swap in fakes per channel.
package dispatch

import (
	"context"
	"sync"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/logger"
)

// OrderContext carries the addressing data a sender needs to reach the
// recipient of one notification.
type OrderContext struct {
	OrderID         string
	CustomerID      string
	Phone           string
	Email           string
	InstagramHandle string
	Language        domain.Language
}

// SendFunc attempts one delivery. It returns true on success and false on a
// transient failure the queue should retry. Panics are treated as transient
// failures by the queue.
type SendFunc func(ctx context.Context, oc OrderContext, body string) bool

// Registry is a thread-safe channel-to-sender table.
type Registry struct {
	mu      sync.RWMutex
	senders map[domain.Channel]SendFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[domain.Channel]SendFunc)}
}

// Register installs a sender for a channel, replacing any previous one.
func (r *Registry) Register(channel domain.Channel, fn SendFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channel] = fn
	logger.InfoCF("dispatch", "Channel sender registered", map[string]interface{}{
		"channel": channel.String(),
	})
}

// Lookup returns the sender for a channel, if registered.
func (r *Registry) Lookup(channel domain.Channel) (SendFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.senders[channel]
	return fn, ok
}

// Channels returns the registered channels.
func (r *Registry) Channels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
