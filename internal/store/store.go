// ABOUTME: Store interface and record type for the append-only event ledger.
// ABOUTME: Ledger rows mirror normalized events for synchronous retrieval.

package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// LedgerEvent is one row of the append-only event log. Payload holds the
// normalized event payload as raw JSON.
type LedgerEvent struct {
	ID        string          `json:"id"`
	Session   string          `json:"session"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Store is the event ledger. Events are appended in publication order and
// listed back in the same order.
type Store interface {
	// SaveEvent appends one event to the ledger.
	SaveEvent(ctx context.Context, ev *LedgerEvent) error

	// ListEvents returns all events in insertion order.
	ListEvents(ctx context.Context) ([]*LedgerEvent, error)

	// CountEvents returns the number of ledger rows.
	CountEvents(ctx context.Context) (int, error)

	// Close releases the underlying resources.
	Close() error
}
