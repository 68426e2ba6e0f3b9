// Webhook ingestion — channel providers push actor messages here.
//
//	POST /api/webhook/{actor}
//	{"order_id": "ord-1", "sender": "+50761234567", "content": "listo", "language": "es"}
//
// The actor path segment names who is speaking: customer, kitchen or driver.
// Messages are accepted onto the message bus and processed asynchronously;
// the response only acknowledges receipt.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mealkitz/orderflow/pkg/bus"
	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/logger"
)

type webhookPayload struct {
	OrderID  string            `json:"order_id"`
	Sender   string            `json:"sender"`
	Content  string            `json:"content"`
	Language string            `json:"language,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	actor := domain.ActorType(strings.ToLower(r.PathValue("actor")))
	if !actor.Valid() || !actor.Human() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown actor type"})
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if payload.OrderID == "" || payload.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id and content required"})
		return
	}

	msg := bus.InboundMessage{
		OrderID:  payload.OrderID,
		Actor:    actor,
		ActorID:  payload.Sender,
		Content:  payload.Content,
		Language: domain.Language(payload.Language),
		Metadata: payload.Metadata,
	}

	if !s.messageBus.PublishInbound(msg) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "message bus unavailable"})
		return
	}

	logger.DebugCF("api", "Webhook accepted", map[string]interface{}{
		"actor":    actor.String(),
		"order_id": payload.OrderID,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
