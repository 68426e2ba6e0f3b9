package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mealkitz/orderflow/pkg/config"
	"github.com/mealkitz/orderflow/pkg/dispatch"
	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/notification"
)

func testConfig() config.QueueConfig {
	return config.QueueConfig{
		MaxConcurrent: 5,
		// High rate so tests are not throttled by batch pacing.
		RateLimit:              60000,
		MaxAttempts:            3,
		DispatchTimeoutSeconds: 5,
	}
}

func note(orderID string) *notification.Notification {
	return notification.New(orderID, "+50761111111", domain.ChannelWhatsApp, "body for "+orderID, domain.LangEnglish)
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDeliverySuccess(t *testing.T) {
	reg := dispatch.NewRegistry()
	var delivered atomic.Int32
	reg.Register(domain.ChannelWhatsApp, func(ctx context.Context, oc dispatch.OrderContext, body string) bool {
		delivered.Add(1)
		return true
	})

	q := New(testConfig(), reg, nil, nil, nil)
	q.Start()
	defer q.Stop()

	n := note("ord-1")
	if err := q.Enqueue(n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, "delivery", func() bool { return q.Stats().Delivered == 1 })

	if got := delivered.Load(); got != 1 {
		t.Errorf("sender invoked %d times, want 1", got)
	}
	if n.Status != notification.StatusDelivered {
		t.Errorf("status = %s, want delivered", n.Status)
	}
	if n.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 (failures only)", n.Attempts)
	}
	if s := q.Stats(); s.QueueSize != 0 {
		t.Errorf("queue size = %d, want 0", s.QueueSize)
	}
}

func TestPanicThenSuccess(t *testing.T) {
	reg := dispatch.NewRegistry()
	var calls atomic.Int32
	reg.Register(domain.ChannelWhatsApp, func(ctx context.Context, oc dispatch.OrderContext, body string) bool {
		if calls.Add(1) <= 2 {
			panic("provider blew up")
		}
		return true
	})

	q := New(testConfig(), reg, nil, nil, nil)
	q.Start()
	defer q.Stop()

	n := note("ord-2")
	if err := q.Enqueue(n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, "delivery after panics", func() bool { return q.Stats().Delivered == 1 })

	if got := calls.Load(); got != 3 {
		t.Errorf("sender invoked %d times, want 3", got)
	}
	if n.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 at time of success", n.Attempts)
	}
	if n.Status != notification.StatusDelivered {
		t.Errorf("status = %s, want delivered", n.Status)
	}
}

func TestAttemptBudgetExhausted(t *testing.T) {
	reg := dispatch.NewRegistry()
	var calls atomic.Int32
	reg.Register(domain.ChannelWhatsApp, func(ctx context.Context, oc dispatch.OrderContext, body string) bool {
		calls.Add(1)
		return false
	})

	q := New(testConfig(), reg, nil, nil, nil)
	q.Start()
	defer q.Stop()

	n := note("ord-3")
	if err := q.Enqueue(n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, "permanent failure", func() bool { return q.Stats().Failed == 1 })

	if got := calls.Load(); got != 3 {
		t.Errorf("sender invoked %d times, want exactly 3", got)
	}
	if n.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", n.Attempts)
	}
	if n.Status != notification.StatusFailed {
		t.Errorf("status = %s, want failed", n.Status)
	}
	if s := q.Stats(); s.QueueSize != 0 {
		t.Errorf("dropped notification should leave the queue, size = %d", s.QueueSize)
	}
}

func TestFIFOOrder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1

	reg := dispatch.NewRegistry()
	var mu sync.Mutex
	var order []string
	reg.Register(domain.ChannelWhatsApp, func(ctx context.Context, oc dispatch.OrderContext, body string) bool {
		mu.Lock()
		order = append(order, oc.OrderID)
		mu.Unlock()
		return true
	})

	q := New(cfg, reg, func(n *notification.Notification) dispatch.OrderContext {
		return dispatch.OrderContext{OrderID: n.OrderID}
	}, nil, nil)

	for _, id := range []string{"ord-a", "ord-b", "ord-c"} {
		if err := q.Enqueue(note(id)); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	q.Start()
	defer q.Stop()

	waitFor(t, "all deliveries", func() bool { return q.Stats().Delivered == 3 })

	mu.Lock()
	defer mu.Unlock()
	want := []string{"ord-a", "ord-b", "ord-c"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
}

func TestRetryGoesToTail(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1

	reg := dispatch.NewRegistry()
	var mu sync.Mutex
	var sequence []string
	reg.Register(domain.ChannelWhatsApp, func(ctx context.Context, oc dispatch.OrderContext, body string) bool {
		mu.Lock()
		defer mu.Unlock()
		sequence = append(sequence, oc.OrderID)
		// First dispatch of ord-x fails; everything else succeeds.
		return !(oc.OrderID == "ord-x" && len(sequence) == 1)
	})

	q := New(cfg, reg, func(n *notification.Notification) dispatch.OrderContext {
		return dispatch.OrderContext{OrderID: n.OrderID}
	}, nil, nil)

	q.Enqueue(note("ord-x"))
	q.Enqueue(note("ord-y"))
	q.Start()
	defer q.Stop()

	waitFor(t, "all deliveries", func() bool { return q.Stats().Delivered == 2 })

	mu.Lock()
	defer mu.Unlock()
	want := []string{"ord-x", "ord-y", "ord-x"}
	if len(sequence) != len(want) {
		t.Fatalf("sequence = %v, want %v", sequence, want)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("retry should go to the tail: sequence = %v, want %v", sequence, want)
		}
	}
}

func TestNoSenderIsPermanentFailure(t *testing.T) {
	q := New(testConfig(), dispatch.NewRegistry(), nil, nil, nil)
	q.Start()
	defer q.Stop()

	n := note("ord-4")
	if err := q.Enqueue(n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, "drop", func() bool { return q.Stats().Failed == 1 })

	if n.Status != notification.StatusFailed {
		t.Errorf("status = %s, want failed", n.Status)
	}
	if n.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 for unroutable notification", n.Attempts)
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := New(testConfig(), dispatch.NewRegistry(), nil, nil, nil)

	empty := note("ord-5")
	empty.Body = ""
	if err := q.Enqueue(empty); err != notification.ErrEmptyBody {
		t.Errorf("empty body: err = %v, want ErrEmptyBody", err)
	}

	bogus := note("ord-6")
	bogus.Channel = domain.Channel("carrier-pigeon")
	if err := q.Enqueue(bogus); err != notification.ErrUnknownChannel {
		t.Errorf("bogus channel: err = %v, want ErrUnknownChannel", err)
	}
}

func TestStopKeepsQueuedItems(t *testing.T) {
	q := New(testConfig(), dispatch.NewRegistry(), nil, nil, nil)

	// Stop before start is a no-op, as is a double start.
	q.Stop()
	q.Start()
	q.Start()
	q.Stop()

	if err := q.Enqueue(note("ord-7")); err != nil {
		t.Fatalf("Enqueue on stopped queue: %v", err)
	}

	s := q.Stats()
	if s.IsProcessing {
		t.Error("queue should report stopped")
	}
	if s.QueueSize != 1 {
		t.Errorf("queue size = %d, want 1", s.QueueSize)
	}
	if s.MaxConcurrent != 5 || s.RateLimit != 60000 {
		t.Errorf("stats should echo configuration, got %+v", s)
	}
}
