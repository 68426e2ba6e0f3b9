package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/notification"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	order_id    TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	channel     TEXT NOT NULL,
	body        TEXT NOT NULL,
	language    TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	enqueued_at TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_order ON notifications(order_id);

CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	order_id  TEXT NOT NULL,
	actor     TEXT NOT NULL,
	actor_id  TEXT NOT NULL,
	content   TEXT NOT NULL,
	state     TEXT NOT NULL,
	ts        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_order ON messages(order_id);
`

// SQLiteHistory is the durable audit log for notifications and messages.
// Writers treat it as advisory: errors are reported but never fatal.
type SQLiteHistory struct {
	db *sql.DB
}

var _ notification.HistoryRepository = (*SQLiteHistory)(nil)

// OpenHistory opens (and creates, if needed) the history database.
func OpenHistory(path string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

// Close closes the underlying database.
func (h *SQLiteHistory) Close() error { return h.db.Close() }

// Record inserts a freshly enqueued notification.
func (h *SQLiteHistory) Record(n *notification.Notification) error {
	_, err := h.db.Exec(
		`INSERT OR REPLACE INTO notifications
		 (id, order_id, customer_id, channel, body, language, attempts, status, enqueued_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OrderID, n.CustomerID, n.Channel.String(), n.Body, n.Language.String(),
		n.Attempts, n.Status.String(), n.EnqueuedAt.Time, time.Now().UTC(),
	)
	return err
}

// UpdateStatus records the delivery outcome for a notification.
func (h *SQLiteHistory) UpdateStatus(id string, status notification.DeliveryStatus, attempts int) error {
	_, err := h.db.Exec(
		`UPDATE notifications SET status = ?, attempts = ?, updated_at = ? WHERE id = ?`,
		status.String(), attempts, time.Now().UTC(), id,
	)
	return err
}

// FindByOrderID returns the notification history for an order, oldest first.
func (h *SQLiteHistory) FindByOrderID(orderID string) ([]*notification.Notification, error) {
	rows, err := h.db.Query(
		`SELECT id, order_id, customer_id, channel, body, language, attempts, status, enqueued_at
		 FROM notifications WHERE order_id = ? ORDER BY enqueued_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		var channel, language, status string
		var enqueued time.Time
		if err := rows.Scan(&n.ID, &n.OrderID, &n.CustomerID, &channel, &n.Body, &language, &n.Attempts, &status, &enqueued); err != nil {
			return nil, err
		}
		n.Channel = domain.Channel(channel)
		n.Language = domain.Language(language)
		n.Status = notification.DeliveryStatus(status)
		n.EnqueuedAt = domain.TimestampFrom(enqueued)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// RecordMessage appends one conversation message to the durable log.
func (h *SQLiteHistory) RecordMessage(orderID, msgID string, actor domain.ActorType, actorID, content, state string, ts time.Time) error {
	_, err := h.db.Exec(
		`INSERT OR IGNORE INTO messages (id, order_id, actor, actor_id, content, state, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msgID, orderID, actor.String(), actorID, content, state, ts,
	)
	return err
}
