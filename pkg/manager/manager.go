// Package manager hosts the conversation manager: the application service
// that feeds actor messages through the state machine, generates system
// replies and fans out notifications to the delivery queue.
package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mealkitz/orderflow/pkg/bus"
	"github.com/mealkitz/orderflow/pkg/dispatch"
	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/conversation"
	"github.com/mealkitz/orderflow/pkg/domain/notification"
	"github.com/mealkitz/orderflow/pkg/logger"
	"github.com/mealkitz/orderflow/pkg/queue"
	"github.com/mealkitz/orderflow/pkg/templates"
)

// ValidationError reports rejected input. It never reaches the state machine.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MessageLog is the durable sink for accepted messages. Writes are fire and
// forget; the in-memory aggregate remains the source of truth.
type MessageLog interface {
	RecordMessage(orderID, msgID string, actor domain.ActorType, actorID, content, state string, ts time.Time) error
}

// Result summarizes the handling of one inbound message.
type Result struct {
	OrderID      string                `json:"order_id"`
	Created      bool                  `json:"created"`
	From         conversation.State    `json:"from"`
	To           conversation.State    `json:"to"`
	Transitioned bool                  `json:"transitioned"`
	Response     *conversation.Message `json:"response,omitempty"`
	Enqueued     int                   `json:"enqueued"`
}

// Manager wires the conversation store, trigger rules, template registry and
// delivery queue into the message-handling pipeline.
type Manager struct {
	store      conversation.Store
	rules      conversation.RuleTable
	notify     NotifyTable
	queue      *queue.DeliveryQueue
	templates  *templates.Registry
	events     domain.EventBus
	log        MessageLog
	restaurant string
}

// Options are the optional collaborators of a Manager.
type Options struct {
	Rules      conversation.RuleTable
	Notify     NotifyTable
	EventBus   domain.EventBus
	MessageLog MessageLog
	Restaurant string
}

// New builds a manager. Zero-value options fall back to the defaults.
func New(store conversation.Store, q *queue.DeliveryQueue, reg *templates.Registry, opts Options) *Manager {
	if opts.Rules == nil {
		opts.Rules = conversation.DefaultRules()
	}
	if opts.Notify == nil {
		opts.Notify = DefaultNotifyTable()
	}
	if opts.Restaurant == "" {
		opts.Restaurant = "Mealkitz"
	}
	return &Manager{
		store:      store,
		rules:      opts.Rules,
		notify:     opts.Notify,
		queue:      q,
		templates:  reg,
		events:     opts.EventBus,
		log:        opts.MessageLog,
		restaurant: opts.Restaurant,
	}
}

// HandleMessage runs one actor utterance through the pipeline: validate,
// record, transition (at most once), reply, notify.
func (m *Manager) HandleMessage(orderID string, actor domain.ActorType, actorID, content string, lang domain.Language) (*Result, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "must not be empty"}
	}
	if !actor.Valid() {
		return nil, &ValidationError{Field: "actor", Reason: fmt.Sprintf("unknown actor type %q", actor)}
	}
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if lang == "" {
		lang = m.templates.DefaultLanguage()
	}

	conv, created, err := m.store.GetOrCreate(orderID, lang)
	if err != nil {
		return nil, err
	}

	msg := conversation.NewMessage(actor, actorID, content)
	from, to, transitioned := conv.AddMessage(msg, m.rules)

	m.persistMessage(conv, msg)
	m.drainEvents(conv)

	logger.InfoCF("manager", "Message handled", map[string]interface{}{
		"order_id":     orderID,
		"actor":        actor.String(),
		"from":         from.String(),
		"to":           to.String(),
		"transitioned": transitioned,
	})

	res := &Result{
		OrderID:      orderID,
		Created:      created,
		From:         from,
		To:           to,
		Transitioned: transitioned,
	}

	if resp := m.GenerateResponse(conv, msg); resp != nil {
		res.Response = resp
	}

	// Notifications key off the matched cue, not the transition: a kitchen
	// that revises its estimate while already preparing repeats the
	// "tiempo" cue without moving the state, and the update must still go
	// out. Cues for steps not yet reached stay silent; the transition path
	// covers those.
	if transitioned {
		res.Enqueued = m.fanOut(conv, msg, to)
	} else if target, matched := m.rules.MatchCue(msg.Actor, msg.Content); matched && !conv.State.Before(target) {
		res.Enqueued = m.fanOut(conv, msg, target)
	}
	return res, nil
}

// Run pumps inbound messages from the bus until it is closed or the context
// ends. Handling errors are logged, never fatal to the pump.
func (m *Manager) Run(ctx context.Context, b *bus.MessageBus) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.Inbound():
			if !ok {
				return
			}
			if _, err := m.HandleMessage(msg.OrderID, msg.Actor, msg.ActorID, msg.Content, msg.Language); err != nil {
				logger.WarnCF("manager", "Inbound message rejected", map[string]interface{}{
					"order_id": msg.OrderID,
					"actor":    msg.Actor.String(),
					"error":    err.Error(),
				})
			}
		}
	}
}

// GenerateResponse produces the system reply for the conversation's current
// state. It is a pure function of the aggregate and the message: no stored
// state changes, no external calls. Nil means no reply is warranted.
func (m *Manager) GenerateResponse(conv *conversation.Conversation, msg conversation.Message) *conversation.Message {
	if msg.Actor != domain.ActorCustomer {
		return nil
	}

	var key templates.Key
	vars := map[string]string{
		"order_id":   conv.OrderID,
		"restaurant": m.restaurant,
	}

	switch conv.State {
	case conversation.StateInitial:
		// Before any transition the reply acknowledges what the customer
		// said, so free-text orders are visibly received.
		key = templates.KeyWelcome
		vars["content"] = msg.Content
	case conversation.StateMenuBrowsing:
		key = templates.KeyMenu
	case conversation.StateOrderConfirmation:
		key = templates.KeyOrderConfirmation
	case conversation.StatePaymentPending:
		key = templates.KeyPaymentInstructions
	case conversation.StatePaymentConfirmed:
		key = templates.KeyPaymentConfirmed
	case conversation.StateCompleted:
		key = templates.KeyOrderComplete
	default:
		return nil
	}

	body, err := m.templates.Render(conv.Language, key, vars)
	if err != nil {
		logger.WarnCF("manager", "Response template missing", map[string]interface{}{
			"order_id": conv.OrderID,
			"state":    conv.State.String(),
			"error":    err.Error(),
		})
		return nil
	}

	if conv.State == conversation.StateInitial {
		if ack, err := m.templates.Render(conv.Language, templates.KeyAcknowledge, vars); err == nil {
			body = ack + " " + body
		}
	}

	reply := conversation.NewMessage(domain.ActorSystem, "orderflow", body)
	return &reply
}

// AddressResolver maps notifications to the addressing context their channel
// sender needs. Actor ids double as channel addresses: phone numbers for
// whatsapp, sms and voice, email addresses for email, handles for instagram.
func AddressResolver() queue.ContextResolver {
	return func(n *notification.Notification) dispatch.OrderContext {
		oc := dispatch.OrderContext{
			OrderID:    n.OrderID,
			CustomerID: n.CustomerID,
			Language:   n.Language,
		}
		switch n.Channel {
		case domain.ChannelEmail:
			oc.Email = n.CustomerID
		case domain.ChannelInstagram:
			oc.InstagramHandle = n.CustomerID
		default:
			oc.Phone = n.CustomerID
		}
		return oc
	}
}

func (m *Manager) persistMessage(conv *conversation.Conversation, msg conversation.Message) {
	if m.log == nil {
		return
	}
	go func() {
		err := m.log.RecordMessage(conv.OrderID, msg.ID.String(), msg.Actor, msg.ActorID, msg.Content, conv.State.String(), msg.Timestamp.Time)
		if err != nil {
			logger.WarnCF("manager", "Message log write failed", map[string]interface{}{
				"order_id": conv.OrderID,
				"error":    err.Error(),
			})
		}
	}()
}

func (m *Manager) drainEvents(conv *conversation.Conversation) {
	if m.events == nil {
		conv.PullEvents()
		return
	}
	for _, e := range conv.PullEvents() {
		m.events.Publish(e)
	}
}
