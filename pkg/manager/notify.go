package manager

import (
	"regexp"
	"strings"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/conversation"
	"github.com/mealkitz/orderflow/pkg/domain/notification"
	"github.com/mealkitz/orderflow/pkg/logger"
	"github.com/mealkitz/orderflow/pkg/templates"
)

// Notice describes one notification to fan out when a state is entered.
type Notice struct {
	Audience domain.ActorType
	Key      templates.Key
	Channel  domain.Channel
}

// NotifyTable maps entered states to the notifications they trigger.
type NotifyTable map[conversation.State][]Notice

// DefaultNotifyTable is the production fan-out: who hears about each step.
func DefaultNotifyTable() NotifyTable {
	return NotifyTable{
		conversation.StatePaymentConfirmed: {
			{Audience: domain.ActorCustomer, Key: templates.KeyPaymentConfirmed},
			{Audience: domain.ActorKitchen, Key: templates.KeyKitchenNewOrder},
		},
		conversation.StatePreparing: {
			{Audience: domain.ActorCustomer, Key: templates.KeyDeliveryUpdate},
			{Audience: domain.ActorDriver, Key: templates.KeyDriverPickupTime},
		},
		conversation.StateDriverAssigned: {
			{Audience: domain.ActorDriver, Key: templates.KeyDriverReady},
			{Audience: domain.ActorCustomer, Key: templates.KeyDriverConfirmed},
		},
		conversation.StateInDelivery: {
			{Audience: domain.ActorCustomer, Key: templates.KeyInDelivery},
		},
		conversation.StateDelivered: {
			{Audience: domain.ActorCustomer, Key: templates.KeyOrderDelivered},
			{Audience: domain.ActorKitchen, Key: templates.KeyKitchenDelivered},
		},
		conversation.StateCompleted: {
			{Audience: domain.ActorCustomer, Key: templates.KeyOrderComplete},
		},
	}
}

// fanOut enqueues the notifications triggered by entering a state. Notices
// whose audience has no active actor yet are skipped. Returns the number of
// notifications handed to the queue.
func (m *Manager) fanOut(conv *conversation.Conversation, msg conversation.Message, entered conversation.State) int {
	notices, ok := m.notify[entered]
	if !ok {
		return 0
	}

	vars := map[string]string{
		"order_id":   conv.OrderID,
		"restaurant": m.restaurant,
	}
	if entered == conversation.StatePreparing {
		vars["prep_time"] = extractPrepTime(msg.Content)
	}

	enqueued := 0
	for _, n := range notices {
		recipient, ok := conv.ActiveActor(n.Audience)
		if !ok {
			logger.DebugCF("manager", "No active actor for notice, skipping", map[string]interface{}{
				"order_id": conv.OrderID,
				"audience": n.Audience.String(),
				"state":    entered.String(),
			})
			continue
		}

		channel := n.Channel
		if channel == "" {
			channel = domain.ChannelWhatsApp
		}

		body, err := m.templates.Render(conv.Language, n.Key, vars)
		if err != nil {
			logger.WarnCF("manager", "Notification template missing", map[string]interface{}{
				"order_id": conv.OrderID,
				"key":      string(n.Key),
				"error":    err.Error(),
			})
			continue
		}

		note := notification.New(conv.OrderID, recipient, channel, body, conv.Language)
		if err := m.queue.Enqueue(note); err != nil {
			logger.ErrorCF("manager", "Enqueue failed", map[string]interface{}{
				"order_id": conv.OrderID,
				"channel":  channel.String(),
				"error":    err.Error(),
			})
			continue
		}
		enqueued++
	}
	return enqueued
}

var prepTimePattern = regexp.MustCompile(`\d+`)

// extractPrepTime pulls the first number out of a kitchen time estimate,
// falling back to the raw message when there is none.
func extractPrepTime(content string) string {
	if n := prepTimePattern.FindString(content); n != "" {
		return n + " min"
	}
	return strings.TrimSpace(content)
}
