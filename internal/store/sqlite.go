// ABOUTME: SQLite implementation of the ledger using modernc.org/sqlite
// ABOUTME: Runs in-memory by default; all ledger state is lost on restart.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite ledger at the given path. Use
// ":memory:" for the process-memory ledger; the schema is created
// automatically.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// every query sees the same ledger.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// createSchema creates the ledger table if it doesn't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id   TEXT NOT NULL UNIQUE,
		session    TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp  TEXT NOT NULL,
		payload    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SaveEvent appends one event to the ledger.
func (s *SQLiteStore) SaveEvent(ctx context.Context, ev *LedgerEvent) error {
	query := `
		INSERT INTO events (event_id, session, event_type, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.Session, ev.EventType, ev.Timestamp, string(ev.Payload))
	if err != nil {
		return fmt.Errorf("saving event: %w", err)
	}
	return nil
}

// ListEvents returns all events in insertion order.
func (s *SQLiteStore) ListEvents(ctx context.Context) ([]*LedgerEvent, error) {
	query := `
		SELECT event_id, session, event_type, timestamp, payload
		FROM events
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	events := make([]*LedgerEvent, 0)
	for rows.Next() {
		var ev LedgerEvent
		var payload string
		if err := rows.Scan(&ev.ID, &ev.Session, &ev.EventType, &ev.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Payload = []byte(payload)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of ledger rows.
func (s *SQLiteStore) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
