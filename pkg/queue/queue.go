// Package queue implements at-least-once outbound notification delivery:
// an unbounded FIFO drained in rate-limited batches with bounded concurrency
// and bounded retries.
package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/mealkitz/orderflow/pkg/config"
	"github.com/mealkitz/orderflow/pkg/dispatch"
	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/notification"
	"github.com/mealkitz/orderflow/pkg/logger"
)

// ContextResolver maps a notification to the addressing context its channel
// sender needs. The manager supplies one backed by the conversation store.
type ContextResolver func(n *notification.Notification) dispatch.OrderContext

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	QueueSize     int  `json:"queue_size"`
	IsProcessing  bool `json:"is_processing"`
	MaxConcurrent int  `json:"max_concurrent"`
	RateLimit     int  `json:"rate_limit"`
	Delivered     int  `json:"delivered"`
	Failed        int  `json:"failed"`
}

// DeliveryQueue drains notifications in FIFO order. Batches hold at most
// MaxConcurrent items and are paced so no more than RateLimit batches start
// per minute. A failed dispatch re-enqueues at the tail until the attempt
// budget is spent, then the notification is dropped and logged.
type DeliveryQueue struct {
	cfg      config.QueueConfig
	registry *dispatch.Registry
	resolve  ContextResolver
	history  notification.HistoryRepository
	events   domain.EventBus

	mu      sync.Mutex
	cond    *sync.Cond
	items   []*notification.Notification
	running bool

	delivered int
	failed    int

	limiter *rate.Limiter
	sem     *semaphore.Weighted

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a stopped queue. history and events may be nil.
func New(cfg config.QueueConfig, registry *dispatch.Registry, resolve ContextResolver, history notification.HistoryRepository, events domain.EventBus) *DeliveryQueue {
	q := &DeliveryQueue{
		cfg:      cfg,
		registry: registry,
		resolve:  resolve,
		history:  history,
		events:   events,
		items:    make([]*notification.Notification, 0),
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 1),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a notification to the tail and wakes the drain loop.
// Notifications enqueued while the queue is stopped are kept and delivered
// once it starts.
func (q *DeliveryQueue) Enqueue(n *notification.Notification) error {
	if n.Body == "" {
		return notification.ErrEmptyBody
	}
	if !n.Channel.Valid() {
		return notification.ErrUnknownChannel
	}

	q.mu.Lock()
	q.items = append(q.items, n)
	size := len(q.items)
	q.mu.Unlock()
	q.cond.Signal()

	if q.history != nil {
		// Fire and forget: audit writes never block the hot path.
		go func() {
			if err := q.history.Record(n); err != nil {
				logger.WarnCF("queue", "History write failed", map[string]interface{}{
					"notification_id": n.ID,
					"error":           err.Error(),
				})
			}
		}()
	}
	q.publish(domain.EventNotificationEnqueued, n)

	logger.DebugCF("queue", "Notification enqueued", map[string]interface{}{
		"notification_id": n.ID,
		"order_id":        n.OrderID,
		"channel":         n.Channel.String(),
		"queue_size":      size,
	})
	return nil
}

// Start launches the drain loop. Starting a running queue is a no-op.
func (q *DeliveryQueue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	q.mu.Unlock()

	go q.run(ctx)

	logger.InfoCF("queue", "Delivery queue started", map[string]interface{}{
		"max_concurrent": q.cfg.MaxConcurrent,
		"rate_limit":     q.cfg.RateLimit,
	})
	q.publishBare(domain.EventQueueStarted)
}

// Stop halts the drain loop. In-flight dispatches finish; queued items stay
// queued for the next Start.
func (q *DeliveryQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	cancel()
	q.cond.Broadcast()
	<-done

	logger.InfoC("queue", "Delivery queue stopped")
	q.publishBare(domain.EventQueueStopped)
}

// Stats returns a snapshot of the queue state.
func (q *DeliveryQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		QueueSize:     len(q.items),
		IsProcessing:  q.running,
		MaxConcurrent: q.cfg.MaxConcurrent,
		RateLimit:     q.cfg.RateLimit,
		Delivered:     q.delivered,
		Failed:        q.failed,
	}
}

// ---------------------------------------------------------------------------
// Drain loop
// ---------------------------------------------------------------------------

func (q *DeliveryQueue) run(ctx context.Context) {
	defer close(q.done)

	for {
		batch, ok := q.nextBatch(ctx)
		if !ok {
			return
		}

		// Pace batch starts to RateLimit per minute.
		if err := q.limiter.Wait(ctx); err != nil {
			q.requeueFront(batch)
			return
		}

		var wg sync.WaitGroup
		for _, n := range batch {
			if err := q.sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				q.requeueFront(batch[indexOf(batch, n):])
				return
			}
			wg.Add(1)
			go func(n *notification.Notification) {
				defer wg.Done()
				defer q.sem.Release(1)
				q.process(ctx, n)
			}(n)
		}
		wg.Wait()
	}
}

// nextBatch blocks until items are available or the queue stops, then pops
// up to MaxConcurrent items from the head.
func (q *DeliveryQueue) nextBatch(ctx context.Context) ([]*notification.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if ctx.Err() != nil || !q.running {
			return nil, false
		}
		q.cond.Wait()
	}
	if ctx.Err() != nil {
		return nil, false
	}

	size := q.cfg.MaxConcurrent
	if size > len(q.items) {
		size = len(q.items)
	}
	batch := make([]*notification.Notification, size)
	copy(batch, q.items[:size])
	q.items = q.items[size:]
	return batch, true
}

// requeueFront puts undispatched items back at the head in order, preserving
// FIFO across a shutdown.
func (q *DeliveryQueue) requeueFront(batch []*notification.Notification) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(append(make([]*notification.Notification, 0, len(batch)+len(q.items)), batch...), q.items...)
	q.mu.Unlock()
}

func indexOf(batch []*notification.Notification, n *notification.Notification) int {
	for i, b := range batch {
		if b == n {
			return i
		}
	}
	return len(batch)
}

// ---------------------------------------------------------------------------
// Single dispatch
// ---------------------------------------------------------------------------

func (q *DeliveryQueue) process(ctx context.Context, n *notification.Notification) {
	sender, ok := q.registry.Lookup(n.Channel)
	if !ok {
		// No sender registered is permanent: retrying cannot fix it.
		logger.ErrorCF("queue", "No sender for channel, dropping notification", map[string]interface{}{
			"notification_id": n.ID,
			"order_id":        n.OrderID,
			"channel":         n.Channel.String(),
		})
		q.abandon(n)
		return
	}

	if q.dispatch(ctx, sender, n) {
		n.MarkDelivered()
		q.mu.Lock()
		q.delivered++
		q.mu.Unlock()
		q.updateHistory(n)
		q.publish(domain.EventNotificationDelivered, n)
		logger.InfoCF("queue", "Notification delivered", map[string]interface{}{
			"notification_id": n.ID,
			"order_id":        n.OrderID,
			"channel":         n.Channel.String(),
			"attempts":        n.Attempts,
		})
		return
	}

	// Failed attempts increment the counter; retry while attempts stay
	// under the budget, so a notification is dispatched at most MaxAttempts
	// times in total.
	attempt := n.RecordAttempt()

	if n.Exhausted(q.cfg.MaxAttempts) {
		logger.ErrorCF("queue", "Notification failed permanently, dropping", map[string]interface{}{
			"notification_id": n.ID,
			"order_id":        n.OrderID,
			"channel":         n.Channel.String(),
			"attempts":        attempt,
		})
		q.abandon(n)
		return
	}

	// Retry goes to the tail: newer traffic is not starved by a flaky channel.
	q.mu.Lock()
	q.items = append(q.items, n)
	q.mu.Unlock()
	q.cond.Signal()
	q.publish(domain.EventNotificationRetried, n)
	logger.WarnCF("queue", "Dispatch failed, re-enqueued", map[string]interface{}{
		"notification_id": n.ID,
		"order_id":        n.OrderID,
		"channel":         n.Channel.String(),
		"attempts":        attempt,
	})
}

// dispatch runs one sender invocation under the per-attempt deadline,
// converting panics into failed attempts so one bad provider cannot take the
// drain loop down.
func (q *DeliveryQueue) dispatch(ctx context.Context, sender dispatch.SendFunc, n *notification.Notification) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("queue", "Sender panicked", map[string]interface{}{
				"notification_id": n.ID,
				"order_id":        n.OrderID,
				"channel":         n.Channel.String(),
				"panic":           r,
			})
			success = false
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, q.cfg.DispatchTimeout())
	defer cancel()

	oc := dispatch.OrderContext{OrderID: n.OrderID, CustomerID: n.CustomerID, Language: n.Language}
	if q.resolve != nil {
		oc = q.resolve(n)
	}
	return sender(attemptCtx, oc, n.Body)
}

func (q *DeliveryQueue) abandon(n *notification.Notification) {
	n.MarkFailed()
	q.mu.Lock()
	q.failed++
	q.mu.Unlock()
	q.updateHistory(n)
	q.publish(domain.EventNotificationFailed, n)
}

func (q *DeliveryQueue) updateHistory(n *notification.Notification) {
	if q.history == nil {
		return
	}
	go func() {
		if err := q.history.UpdateStatus(n.ID, n.Status, n.Attempts); err != nil {
			logger.WarnCF("queue", "History update failed", map[string]interface{}{
				"notification_id": n.ID,
				"error":           err.Error(),
			})
		}
	}()
}

func (q *DeliveryQueue) publish(t domain.EventType, n *notification.Notification) {
	if q.events == nil {
		return
	}
	q.events.Publish(domain.NewEvent(t, domain.EntityID(n.ID), map[string]interface{}{
		"order_id": n.OrderID,
		"channel":  n.Channel.String(),
		"attempts": n.Attempts,
		"status":   n.Status.String(),
	}))
}

func (q *DeliveryQueue) publishBare(t domain.EventType) {
	if q.events == nil {
		return
	}
	q.events.Publish(domain.NewEvent(t, "", nil))
}
