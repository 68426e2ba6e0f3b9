// Package conversation defines the order conversation bounded context.
// A Conversation is an aggregate root holding the append-only message
// history, the lifecycle state, and the active actor roster for one order.
package conversation

import (
	"github.com/mealkitz/orderflow/pkg/domain"
)

// ---------------------------------------------------------------------------
// Message value object
// ---------------------------------------------------------------------------

// Message is a single utterance from one actor. Immutable once appended.
type Message struct {
	ID        domain.EntityID  `json:"id"`
	Actor     domain.ActorType `json:"actor"`
	ActorID   string           `json:"actor_id"`
	Content   string           `json:"content"`
	Timestamp domain.Timestamp `json:"timestamp"`
	Metadata  domain.Metadata  `json:"metadata,omitempty"`
}

// NewMessage builds a message with a fresh ID and server-assigned timestamp.
func NewMessage(actor domain.ActorType, actorID, content string) Message {
	return Message{
		ID:        domain.NewID(),
		Actor:     actor,
		ActorID:   actorID,
		Content:   content,
		Timestamp: domain.Now(),
	}
}

// ---------------------------------------------------------------------------
// Conversation aggregate root
// ---------------------------------------------------------------------------

// Status is the storage lifecycle of a conversation, independent of the
// order State: completed conversations are archived, never deleted.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

func (s Status) String() string { return string(s) }

// Metrics tracks per-conversation message statistics.
type Metrics struct {
	MessageCount  int `json:"message_count"`
	CustomerCount int `json:"customer_count"`
	KitchenCount  int `json:"kitchen_count"`
	DriverCount   int `json:"driver_count"`
	SystemCount   int `json:"system_count"`
}

// Conversation is the aggregate root for one order's multi-actor dialogue.
type Conversation struct {
	domain.AggregateRoot

	OrderID  string          `json:"order_id"`
	Language domain.Language `json:"language"`

	// Messages is append-only; entries are never mutated or removed.
	Messages []Message `json:"messages"`

	State State `json:"state"`

	// ActiveActors tracks at most one active actor id per actor type. A later
	// message from a different id of the same type silently replaces the
	// previous one; concurrent same-type actors are deliberately not modeled.
	ActiveActors map[domain.ActorType]string `json:"active_actors"`

	Status  Status  `json:"status"`
	Metrics Metrics `json:"metrics"`

	CreatedAt    domain.Timestamp `json:"created_at"`
	UpdatedAt    domain.Timestamp `json:"updated_at"`
	LastActiveAt domain.Timestamp `json:"last_active_at"`
}

// New creates a conversation for an order in the initial state.
func New(orderID string, language domain.Language) *Conversation {
	c := &Conversation{
		OrderID:      orderID,
		Language:     language,
		Messages:     make([]Message, 0),
		State:        StateInitial,
		ActiveActors: make(map[domain.ActorType]string),
		Status:       StatusActive,
		CreatedAt:    domain.Now(),
		UpdatedAt:    domain.Now(),
		LastActiveAt: domain.Now(),
	}
	c.SetID(domain.NewID())
	c.RecordEvent(domain.NewEvent(domain.EventConversationCreated, c.ID(), map[string]string{
		"order_id": orderID,
	}))
	return c
}

// AddMessage appends a message, updates the active actor roster and applies
// at most one state transition from the rule table. It returns the states
// before and after, and whether a transition fired.
func (c *Conversation) AddMessage(msg Message, rules RuleTable) (from, to State, transitioned bool) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = domain.Now()
	c.LastActiveAt = domain.Now()
	c.countMessage(msg.Actor)

	c.trackActor(msg)

	c.RecordEvent(domain.NewEvent(domain.EventMessageReceived, c.ID(), map[string]string{
		"order_id": c.OrderID,
		"actor":    msg.Actor.String(),
		"actor_id": msg.ActorID,
	}))

	from = c.State
	target, ok := rules.Evaluate(c.State, msg.Actor, msg.Content)
	if !ok {
		// No matching trigger: the message is recorded, the state stands.
		return from, from, false
	}

	c.State = target
	c.RecordEvent(domain.NewEvent(domain.EventStateChanged, c.ID(), map[string]string{
		"order_id": c.OrderID,
		"from":     from.String(),
		"to":       target.String(),
	}))
	return from, target, true
}

func (c *Conversation) trackActor(msg Message) {
	if !msg.Actor.Human() || msg.ActorID == "" {
		return
	}
	prev, had := c.ActiveActors[msg.Actor]
	c.ActiveActors[msg.Actor] = msg.ActorID
	if had && prev != msg.ActorID {
		c.RecordEvent(domain.NewEvent(domain.EventActorReplaced, c.ID(), map[string]string{
			"order_id": c.OrderID,
			"actor":    msg.Actor.String(),
			"previous": prev,
			"current":  msg.ActorID,
		}))
	}
}

func (c *Conversation) countMessage(actor domain.ActorType) {
	c.Metrics.MessageCount++
	switch actor {
	case domain.ActorCustomer:
		c.Metrics.CustomerCount++
	case domain.ActorKitchen:
		c.Metrics.KitchenCount++
	case domain.ActorDriver:
		c.Metrics.DriverCount++
	case domain.ActorSystem:
		c.Metrics.SystemCount++
	}
}

// ActiveActor returns the current actor id for a type, if any.
func (c *Conversation) ActiveActor(actor domain.ActorType) (string, bool) {
	id, ok := c.ActiveActors[actor]
	return id, ok
}

// History returns a copy of all messages in arrival order.
func (c *Conversation) History() []Message {
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// MessageCount returns the number of recorded messages.
func (c *Conversation) MessageCount() int { return len(c.Messages) }

// Archive marks the conversation as archived. History is retained.
func (c *Conversation) Archive() {
	if c.Status == StatusArchived {
		return
	}
	c.Status = StatusArchived
	c.UpdatedAt = domain.Now()
	c.RecordEvent(domain.NewEvent(domain.EventConversationArchived, c.ID(), map[string]string{
		"order_id": c.OrderID,
	}))
}

// ---------------------------------------------------------------------------
// Repository interface
// ---------------------------------------------------------------------------

// Repository defines persistence for Conversation aggregates.
type Repository interface {
	FindByOrderID(orderID string) (*Conversation, error)
	FindActive() ([]*Conversation, error)
	FindAll() ([]*Conversation, error)
	Save(c *Conversation) error
}

// Store is the conversation store injected into the manager. GetOrCreate is
// the idempotent creation primitive: an existing conversation is returned
// unchanged, never reset.
type Store interface {
	Repository
	GetOrCreate(orderID string, language domain.Language) (*Conversation, bool, error)
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotFound     Error = "conversation not found"
	ErrEmptyOrderID Error = "order id cannot be empty"
)
