package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	DeliveryOutcomeSynced = "synced"
	DeliveryOutcomeError  = "error"
)

// DeliveryEntry is one audit row of the daemon's delivery attempts.
type DeliveryEntry struct {
	ID        int64
	QueueID   string
	Kind      string
	Outcome   string
	Status    int
	Message   string
	CreatedAt time.Time
}

// LogDelivery appends one row to the delivery audit log. The log is
// advisory: failures to write it are returned but never block a drain.
func (db *DB) LogDelivery(ctx context.Context, entry *DeliveryEntry) error {
	query := `INSERT INTO delivery_log (queue_id, kind, outcome, status, message) VALUES (?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, entry.QueueID, entry.Kind, entry.Outcome, entry.Status, entry.Message)
	if err != nil {
		return fmt.Errorf("failed to log delivery: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// RecentDeliveries returns the newest audit rows, newest first.
func (db *DB) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryEntry, error) {
	query := `SELECT id, queue_id, kind, outcome, status, message, created_at
              FROM delivery_log ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent deliveries: %w", err)
	}
	defer rows.Close()

	var entries []DeliveryEntry
	for rows.Next() {
		var e DeliveryEntry
		var status sql.NullInt64
		var message sql.NullString
		if err := rows.Scan(&e.ID, &e.QueueID, &e.Kind, &e.Outcome, &status, &message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery entry: %w", err)
		}
		e.Status = int(status.Int64)
		e.Message = message.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
