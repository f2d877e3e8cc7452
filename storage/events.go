package storage

import (
	"context"
	"fmt"
	"time"
)

// Event is one row of the append-only event log. IDs are assigned by SQLite
// and increase monotonically, which is what Last-Event-ID replay keys on.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppendEvent appends one event row and returns its id.
func (s *Store) AppendEvent(ctx context.Context, eventType string, data []byte) (int64, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (type, data, created_at) VALUES (?, ?, ?)`,
		eventType, string(data), formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event id: %w", err)
	}
	return id, nil
}

// EventsAfter returns up to limit events with id > after, in ascending id
// order. It backs Last-Event-ID replay.
func (s *Store) EventsAfter(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, data, created_at FROM events
		WHERE id > ? ORDER BY id ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("events after %d: %w", after, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
