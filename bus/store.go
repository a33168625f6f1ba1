package bus

import (
	"database/sql"

	"github.com/waitline/waitline/errors"
)

// Store handles persistence of the event log and consumer cursors
type Store struct {
	db *sql.DB
}

// NewStore creates a new event store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an event at the tail of the log and returns its id.
func (s *Store) Append(eventType string, payload []byte) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO events (event_type, payload) VALUES (?, ?)",
		eventType, string(payload),
	)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to append %s event", eventType)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read event id")
	}
	return id, nil
}

// ListAfter returns up to limit events with id greater than cursor,
// in log order.
func (s *Store) ListAfter(cursor int64, limit int) ([]*Event, error) {
	rows, err := s.db.Query(
		"SELECT id, event_type, payload, created_at FROM events WHERE id > ? ORDER BY id ASC LIMIT ?",
		cursor, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.ID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		e.Payload = []byte(payload)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate events")
	}
	return events, nil
}

// Cursor returns the last delivered event id for the named consumer.
// An unknown consumer starts at zero, the head of the log.
func (s *Store) Cursor(name string) (int64, error) {
	var cursor int64
	err := s.db.QueryRow("SELECT cursor FROM bus_consumers WHERE name = ?", name).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read cursor for %s", name)
	}
	return cursor, nil
}

// SetCursor records the last delivered event id for the named consumer.
func (s *Store) SetCursor(name string, cursor int64) error {
	_, err := s.db.Exec(`
		INSERT INTO bus_consumers (name, cursor, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET cursor = excluded.cursor, updated_at = CURRENT_TIMESTAMP`,
		name, cursor,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set cursor for %s", name)
	}
	return nil
}
