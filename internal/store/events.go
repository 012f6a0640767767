// ABOUTME: Journal event persistence: append, list and best-effort record
// ABOUTME: Events carry a kind, optional JSON detail and a UTC timestamp

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendEvent inserts e. ID and CreatedAt are generated if unset.
func (s *SQLiteStore) AppendEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling event detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, kind, detail_json, created_at) VALUES (?, ?, ?, ?)`,
		e.ID,
		string(e.Kind),
		detailJSON,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("appended event", "id", e.ID, "kind", e.Kind)
	return nil
}

// Record implements Journal. Failures are logged, never returned.
func (s *SQLiteStore) Record(ctx context.Context, kind EventKind, detail map[string]any) {
	if err := s.AppendEvent(ctx, &Event{Kind: kind, Detail: detail}); err != nil {
		s.logger.Warn("failed to record event", "kind", kind, "error", err)
	}
}

// normalizeLimit applies default (50) and cap (500) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}

// ListEvents returns the most recent events, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, detail_json, created_at FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []Event{}
	for rows.Next() {
		var e Event
		var kind, ts string
		var detailJSON *string
		if err := rows.Scan(&e.ID, &kind, &detailJSON, &ts); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Kind = EventKind(kind)
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}
