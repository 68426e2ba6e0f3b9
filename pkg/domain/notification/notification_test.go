package notification

import (
	"testing"

	"github.com/mealkitz/orderflow/pkg/domain"
)

func TestNewNotification(t *testing.T) {
	n := New("ord-1", "+50761111111", domain.ChannelWhatsApp, "su pedido está listo", domain.LangSpanish)

	if n.ID == "" {
		t.Error("notification should get an id")
	}
	if n.Status != StatusQueued {
		t.Errorf("status = %s, want queued", n.Status)
	}
	if n.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", n.Attempts)
	}
	if n.EnqueuedAt.IsZero() {
		t.Error("enqueued timestamp should be set")
	}

	other := New("ord-1", "+50761111111", domain.ChannelWhatsApp, "x", domain.LangSpanish)
	if other.ID == n.ID {
		t.Error("ids must be unique")
	}
}

func TestAttemptBookkeeping(t *testing.T) {
	n := New("ord-1", "c", domain.ChannelSMS, "x", domain.LangEnglish)

	for want := 1; want <= 3; want++ {
		if got := n.RecordAttempt(); got != want {
			t.Fatalf("RecordAttempt = %d, want %d", got, want)
		}
	}

	if !n.Exhausted(3) {
		t.Error("three attempts against a budget of three is exhausted")
	}
	if n.Exhausted(4) {
		t.Error("budget of four leaves room")
	}
}

func TestStatusTransitions(t *testing.T) {
	n := New("ord-1", "c", domain.ChannelEmail, "x", domain.LangEnglish)

	n.MarkDelivered()
	if n.Status != StatusDelivered {
		t.Errorf("status = %s, want delivered", n.Status)
	}

	n.MarkFailed()
	if n.Status != StatusFailed {
		t.Errorf("status = %s, want failed", n.Status)
	}
}
