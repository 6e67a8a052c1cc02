// Package event normalizes raw messaging-client callbacks into a uniform,
// human-readable record.
//
// Classification is by declared callback origin, never payload sniffing:
// a message callback becomes a message event, an ack callback an ack event,
// and so on. Message events are sub-classified by content type (text,
// location, contact card, audio/voice-note, image).
//
// Normalization converts epoch timestamps to a local human-readable form
// exactly once; downstream consumers receive the formatted value. Events are
// immutable once produced and have no lifecycle of their own beyond being
// handed to the broadcast hub, the ledger and the webhook dispatcher.
package event
