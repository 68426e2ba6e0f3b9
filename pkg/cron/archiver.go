// Package cron runs the scheduled housekeeping jobs, currently the
// completed-conversation archiver.
package cron

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/conversation"
	"github.com/mealkitz/orderflow/pkg/logger"
)

// Archiver periodically marks completed conversations as archived. History
// is never deleted; archiving only moves conversations out of the active set.
type Archiver struct {
	store  conversation.Store
	events domain.EventBus
	expr   string
}

// InvalidCronError reports a cron expression gronx cannot parse.
type InvalidCronError struct {
	Expr string
}

func (e *InvalidCronError) Error() string {
	return "invalid cron expression: " + e.Expr
}

// NewArchiver builds an archiver with a cron expression. An invalid
// expression is reported immediately rather than at first tick.
func NewArchiver(store conversation.Store, events domain.EventBus, expr string) (*Archiver, error) {
	if !gronx.IsValid(expr) {
		return nil, &InvalidCronError{Expr: expr}
	}
	return &Archiver{store: store, events: events, expr: expr}, nil
}

// Run sleeps until each cron tick and fires an archive pass. Blocks until
// the context ends.
func (a *Archiver) Run(ctx context.Context) {
	logger.InfoCF("cron", "Archiver scheduled", map[string]interface{}{
		"cron": a.expr,
	})

	for {
		next, err := gronx.NextTickAfter(a.expr, time.Now().UTC(), false)
		if err != nil {
			logger.ErrorCF("cron", "Failed to compute next tick", map[string]interface{}{
				"cron":  a.expr,
				"error": err.Error(),
			})
			next = time.Now().UTC().Add(time.Minute)
		}

		select {
		case <-ctx.Done():
			logger.InfoC("cron", "Archiver stopped")
			return
		case <-time.After(time.Until(next)):
			a.archivePass()
		}
	}
}

// archivePass archives every active conversation that reached the terminal
// state.
func (a *Archiver) archivePass() {
	active, err := a.store.FindActive()
	if err != nil {
		logger.ErrorCF("cron", "Archive pass failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	archived := 0
	for _, c := range active {
		if !c.State.Terminal() {
			continue
		}
		c.Archive()
		if err := a.store.Save(c); err != nil {
			logger.WarnCF("cron", "Archive save failed", map[string]interface{}{
				"order_id": c.OrderID,
				"error":    err.Error(),
			})
			continue
		}
		a.publish(c)
		archived++
	}

	if archived > 0 {
		logger.InfoCF("cron", "Archive pass complete", map[string]interface{}{
			"archived": archived,
		})
	}
}

func (a *Archiver) publish(c *conversation.Conversation) {
	if a.events == nil {
		c.PullEvents()
		return
	}
	for _, e := range c.PullEvents() {
		a.events.Publish(e)
	}
}
