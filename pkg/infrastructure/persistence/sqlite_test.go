package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/notification"
)

func openTestHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRecordAndFind(t *testing.T) {
	h := openTestHistory(t)

	n := notification.New("ord-1", "+50761111111", domain.ChannelWhatsApp, "pedido listo", domain.LangSpanish)
	if err := h.Record(n); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := h.FindByOrderID("ord-1")
	if err != nil {
		t.Fatalf("FindByOrderID: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("found %d notifications, want 1", len(got))
	}
	if got[0].ID != n.ID || got[0].Body != "pedido listo" || got[0].Channel != domain.ChannelWhatsApp {
		t.Errorf("round-tripped notification = %+v", got[0])
	}
	if got[0].Status != notification.StatusQueued {
		t.Errorf("status = %s, want queued", got[0].Status)
	}
}

func TestHistoryUpdateStatus(t *testing.T) {
	h := openTestHistory(t)

	n := notification.New("ord-2", "c", domain.ChannelSMS, "x", domain.LangEnglish)
	if err := h.Record(n); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := h.UpdateStatus(n.ID, notification.StatusDelivered, 2); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, _ := h.FindByOrderID("ord-2")
	if len(got) != 1 {
		t.Fatalf("found %d notifications, want 1", len(got))
	}
	if got[0].Status != notification.StatusDelivered || got[0].Attempts != 2 {
		t.Errorf("updated notification = %+v", got[0])
	}
}

func TestHistoryFindEmptyOrder(t *testing.T) {
	h := openTestHistory(t)
	got, err := h.FindByOrderID("never-seen")
	if err != nil {
		t.Fatalf("FindByOrderID: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("found %d notifications, want 0", len(got))
	}
}

func TestRecordMessage(t *testing.T) {
	h := openTestHistory(t)
	err := h.RecordMessage("ord-3", "msg-1", domain.ActorKitchen, "kitchen-1", "15 minutos", "preparing", time.Now().UTC())
	if err != nil {
		t.Errorf("RecordMessage: %v", err)
	}
}
