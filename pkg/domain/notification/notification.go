// Package notification defines the outbound notification bounded context:
// the Notification aggregate and its delivery lifecycle.
package notification

import (
	"github.com/google/uuid"

	"github.com/mealkitz/orderflow/pkg/domain"
)

// DeliveryStatus is the lifecycle of a notification inside the queue.
type DeliveryStatus string

const (
	StatusQueued    DeliveryStatus = "queued"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

// Notification is one outbound message bound for a single channel. It is
// mutable only in its delivery bookkeeping (Attempts, Status); the addressing
// and body are fixed at enqueue time.
type Notification struct {
	ID         string           `json:"id"`
	OrderID    string           `json:"order_id"`
	CustomerID string           `json:"customer_id"`
	Channel    domain.Channel   `json:"channel"`
	Body       string           `json:"message"`
	Language   domain.Language  `json:"language"`
	Attempts   int              `json:"attempts"`
	Status     DeliveryStatus   `json:"status"`
	EnqueuedAt domain.Timestamp `json:"timestamp"`
	Metadata   domain.Metadata  `json:"metadata,omitempty"`
}

// New builds a queued notification with a fresh UUID.
func New(orderID, customerID string, channel domain.Channel, body string, lang domain.Language) *Notification {
	return &Notification{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		CustomerID: customerID,
		Channel:    channel,
		Body:       body,
		Language:   lang,
		Attempts:   0,
		Status:     StatusQueued,
		EnqueuedAt: domain.Now(),
	}
}

// MarkDelivered records a successful dispatch.
func (n *Notification) MarkDelivered() { n.Status = StatusDelivered }

// MarkFailed records that the notification was abandoned.
func (n *Notification) MarkFailed() { n.Status = StatusFailed }

// RecordAttempt increments the attempt counter and returns the new count.
func (n *Notification) RecordAttempt() int {
	n.Attempts++
	return n.Attempts
}

// Exhausted reports whether the notification has used up its attempt budget.
func (n *Notification) Exhausted(maxAttempts int) bool {
	return n.Attempts >= maxAttempts
}

// HistoryRepository records the delivery outcome of every notification for
// audit. Writes are advisory: a failed write never blocks delivery.
type HistoryRepository interface {
	Record(n *Notification) error
	UpdateStatus(id string, status DeliveryStatus, attempts int) error
	FindByOrderID(orderID string) ([]*Notification, error)
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrUnknownChannel Error = "unknown delivery channel"
	ErrEmptyBody      Error = "notification body cannot be empty"
	ErrQueueStopped   Error = "delivery queue is stopped"
)
