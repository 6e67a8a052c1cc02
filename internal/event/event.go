// ABOUTME: Normalized event record produced from raw client callbacks.
// ABOUTME: Defines the uniform schema handed to the hub, ledger and webhook sink.

package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type tags the origin of a normalized event.
type Type string

const (
	TypeMessage Type = "message"
	TypeAck     Type = "ack"
	TypeState   Type = "state"
	TypeCall    Type = "call"
)

// Event is the uniform record produced by normalizing one raw client
// callback. It is immutable once produced: the same value flows to the
// broadcast hub, the ledger and the webhook dispatcher.
type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"event_type"`
	Session   string `json:"session"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// timestampLayout is the human-readable local representation used for all
// event timestamps.
const timestampLayout = "2006-01-02 15:04:05"

// formatEpoch converts epoch seconds to the local human-readable form.
// Zero epochs fall back to the current time. The conversion happens exactly
// once, at normalization time.
func formatEpoch(epoch int64) string {
	if epoch == 0 {
		return time.Now().Format(timestampLayout)
	}
	return time.Unix(epoch, 0).Local().Format(timestampLayout)
}

// newEvent assembles an Event with a fresh ID and the given timestamp epoch.
func newEvent(typ Type, session string, epoch int64, payload any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Session:   session,
		Timestamp: formatEpoch(epoch),
		Payload:   payload,
	}
}

// JSON serializes the event to its stable wire form.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
