// Orderflow API server — REST endpoints for conversation state and queue
// introspection, webhook ingestion and a WebSocket feed of domain events.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mealkitz/orderflow/pkg/bus"
	"github.com/mealkitz/orderflow/pkg/config"
	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/conversation"
	"github.com/mealkitz/orderflow/pkg/domain/notification"
	"github.com/mealkitz/orderflow/pkg/logger"
	"github.com/mealkitz/orderflow/pkg/queue"
)

// Server is the HTTP API server for orderflow.
type Server struct {
	config     *config.Config
	store      conversation.Store
	queue      *queue.DeliveryQueue
	history    notification.HistoryRepository
	messageBus *bus.MessageBus
	wsHub      *WSHub
	startTime  time.Time
	server     *http.Server
	mu         sync.RWMutex
}

// NewServer creates a new API server instance.
func NewServer(
	cfg *config.Config,
	store conversation.Store,
	q *queue.DeliveryQueue,
	history notification.HistoryRepository,
	msgBus *bus.MessageBus,
	events domain.EventBus,
) *Server {
	// Secure by default: auto-generate an API key if none is configured.
	// Random key per session, printed once at startup.
	if cfg.Gateway.APIKey == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Gateway.APIKey = hex.EncodeToString(raw)
			logger.WarnCF("api", "No API key configured, generated session key", map[string]interface{}{
				"api_key": cfg.Gateway.APIKey,
			})
		}
	}

	s := &Server{
		config:     cfg,
		store:      store,
		queue:      q,
		history:    history,
		messageBus: msgBus,
		startTime:  time.Now(),
	}
	s.wsHub = NewWSHub(s)
	if events != nil {
		events.SubscribeAll(func(e domain.Event) {
			s.wsHub.Broadcast(string(e.EventType()), map[string]interface{}{
				"aggregate_id": e.AggregateID().String(),
				"data":         e.Payload(),
			})
		})
	}
	return s
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/system/status", s.handleSystemStatus)

	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/conversations/{order}", s.handleConversationDetail)
	mux.HandleFunc("GET /api/conversations/{order}/history", s.handleConversationHistory)
	mux.HandleFunc("GET /api/conversations/{order}/notifications", s.handleConversationNotifications)

	mux.HandleFunc("GET /api/queue/stats", s.handleQueueStats)

	// Webhook ingestion (channel providers → orderflow)
	mux.HandleFunc("POST /api/webhook/{actor}", s.handleWebhook)

	// WebSocket for live events
	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(authMiddleware(s.config.Gateway.APIKey, mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "API server starting", map[string]interface{}{
		"addr": addr,
	})

	go s.wsHub.Run(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime)

	active, _ := s.store.FindActive()
	all, _ := s.store.FindAll()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"conversations": map[string]interface{}{
			"active": len(active),
			"total":  len(all),
		},
		"queue": s.queue.Stats(),
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.FindAll()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	result := make([]map[string]interface{}, 0, len(convs))
	for _, c := range convs {
		result = append(result, map[string]interface{}{
			"order_id":       c.OrderID,
			"state":          c.State.String(),
			"status":         c.Status.String(),
			"language":       c.Language.String(),
			"message_count":  c.MessageCount(),
			"active_actors":  c.ActiveActors,
			"last_active_at": c.LastActiveAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConversationDetail(w http.ResponseWriter, r *http.Request) {
	c, ok := s.findConversation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":      c.OrderID,
		"state":         c.State.String(),
		"status":        c.Status.String(),
		"language":      c.Language.String(),
		"active_actors": c.ActiveActors,
		"metrics":       c.Metrics,
		"created_at":    c.CreatedAt,
		"updated_at":    c.UpdatedAt,
	})
}

func (s *Server) handleConversationHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := s.findConversation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id": c.OrderID,
		"state":    c.State.String(),
		"messages": c.History(),
	})
}

func (s *Server) handleConversationNotifications(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("order")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order id required"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	notes, err := s.history.FindByOrderID(orderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func (s *Server) findConversation(w http.ResponseWriter, r *http.Request) (*conversation.Conversation, bool) {
	orderID := r.PathValue("order")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order id required"})
		return nil, false
	}
	c, err := s.store.FindByOrderID(orderID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		} else {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return nil, false
	}
	return c, true
}
