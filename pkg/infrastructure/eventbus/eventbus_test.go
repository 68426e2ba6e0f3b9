package eventbus

import (
	"testing"

	"github.com/mealkitz/orderflow/pkg/domain"
)

func TestPublishRoutesByType(t *testing.T) {
	b := New()
	defer b.Close()

	var stateChanges, all int
	b.Subscribe(domain.EventStateChanged, func(e domain.Event) { stateChanges++ })
	b.SubscribeAll(func(e domain.Event) { all++ })

	b.Publish(domain.NewEvent(domain.EventStateChanged, "agg-1", nil))
	b.Publish(domain.NewEvent(domain.EventNotificationEnqueued, "agg-2", nil))

	if stateChanges != 1 {
		t.Errorf("typed handler called %d times, want 1", stateChanges)
	}
	if all != 2 {
		t.Errorf("wildcard handler called %d times, want 2", all)
	}
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	b := New()
	defer b.Close()

	var survived bool
	b.Subscribe(domain.EventStateChanged, func(e domain.Event) { panic("bad handler") })
	b.Subscribe(domain.EventStateChanged, func(e domain.Event) { survived = true })

	b.Publish(domain.NewEvent(domain.EventStateChanged, "agg-1", nil))

	if !survived {
		t.Error("a panicking handler must not break other subscribers")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New()

	var called bool
	b.SubscribeAll(func(e domain.Event) { called = true })
	b.Close()

	b.Publish(domain.NewEvent(domain.EventStateChanged, "agg-1", nil))
	if called {
		t.Error("closed bus must drop events")
	}
}
