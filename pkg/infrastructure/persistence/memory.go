// Package persistence provides storage adapters: the in-memory conversation
// store that backs the live state machine, and the SQLite history log kept
// for audit.
package persistence

import (
	"sync"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/conversation"
)

// MemoryConversationStore keeps conversations keyed by order id. The live
// state machine is memory-first; durability is delegated to the history log.
type MemoryConversationStore struct {
	mu    sync.RWMutex
	byOrd map[string]*conversation.Conversation
}

var _ conversation.Store = (*MemoryConversationStore)(nil)

// NewMemoryConversationStore creates an empty store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{byOrd: make(map[string]*conversation.Conversation)}
}

// GetOrCreate returns the conversation for an order, creating it in the
// initial state if absent. The bool reports whether it was created. An
// existing conversation is returned as-is, never reset.
func (s *MemoryConversationStore) GetOrCreate(orderID string, language domain.Language) (*conversation.Conversation, bool, error) {
	if orderID == "" {
		return nil, false, conversation.ErrEmptyOrderID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byOrd[orderID]; ok {
		return c, false, nil
	}
	c := conversation.New(orderID, language)
	s.byOrd[orderID] = c
	return c, true, nil
}

// FindByOrderID returns the conversation for an order.
func (s *MemoryConversationStore) FindByOrderID(orderID string) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byOrd[orderID]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return c, nil
}

// FindActive returns all conversations not yet archived.
func (s *MemoryConversationStore) FindActive() ([]*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*conversation.Conversation, 0, len(s.byOrd))
	for _, c := range s.byOrd {
		if c.Status == conversation.StatusActive {
			out = append(out, c)
		}
	}
	return out, nil
}

// FindAll returns every conversation, archived included.
func (s *MemoryConversationStore) FindAll() ([]*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*conversation.Conversation, 0, len(s.byOrd))
	for _, c := range s.byOrd {
		out = append(out, c)
	}
	return out, nil
}

// Save is a no-op for the memory store: aggregates are mutated in place.
// It exists so callers can swap in a durable implementation.
func (s *MemoryConversationStore) Save(c *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOrd[c.OrderID] = c
	return nil
}
