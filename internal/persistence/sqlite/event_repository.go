package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/campus-voting/internal/persistence"
)

// EventRepository implements persistence.EventRepository using SQLite.
// Sequence numbers come from an AUTOINCREMENT key and are never reused.
type EventRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewEventRepository creates a new SQLite event outbox
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

// AppendEvent stores an event and returns it with its assigned sequence number.
func (r *EventRepository) AppendEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	if event.Type == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}
	if len(event.Payload) == 0 {
		event.Payload = []byte("{}")
	}
	result, err := r.helper.Exec(ctx,
		`INSERT INTO events (type, target, payload, created_at) VALUES (?, ?, ?, ?)`,
		event.Type, event.Target, string(event.Payload), formatTime(event.CreatedAt),
	)
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return persistence.Event{}, fmt.Errorf("read event sequence: %w", err)
	}
	event.Seq = seq
	event.CreatedAt = event.CreatedAt.UTC()
	return event, nil
}

// ListEventsAfter returns up to limit events with seq greater than after, oldest first.
func (r *EventRepository) ListEventsAfter(ctx context.Context, after int64, limit int) ([]persistence.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.helper.Query(ctx, `
		SELECT seq, type, target, payload, created_at FROM events
		WHERE seq > ? ORDER BY seq ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		var (
			event              persistence.Event
			payload, createdAt string
		)
		if err := rows.Scan(&event.Seq, &event.Type, &event.Target, &payload, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		event.Payload = []byte(payload)
		if event.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// PruneEventsBefore deletes events created before the cutoff.
func (r *EventRepository) PruneEventsBefore(ctx context.Context, before time.Time) (int, error) {
	result, err := r.helper.Exec(ctx, `DELETE FROM events WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}
