// ABOUTME: Classification of raw client callbacks into normalized events.
// ABOUTME: Covers message subtypes, ack codes, state tokens and incoming calls.

package event

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zapgate/zapgate/internal/waclient"
)

// unspecified is the sentinel used for absent media fields.
const unspecified = "unspecified"

// SenderInfo is the sender identity block shared by all message subtypes.
type SenderInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PushName string `json:"push_name"`
}

// MessageMeta carries the fields shared by every message subtype.
type MessageMeta struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Timestamp string     `json:"timestamp"`
	FromMe    bool       `json:"from_me"`
	Sender    SenderInfo `json:"sender"`
}

// TextMessage is the payload for plain text messages.
type TextMessage struct {
	MessageMeta
	Body   string   `json:"body"`
	Viewed bool     `json:"viewed"`
	Emojis []string `json:"emojis,omitempty"`
}

// LocationMessage is the payload for shared locations.
type LocationMessage struct {
	MessageMeta
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ContactMessage is the payload for contact-card (vCard) messages.
type ContactMessage struct {
	MessageMeta
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Name     string `json:"name"`
}

// MediaMessage is the payload for audio, voice-note and image messages.
// Absent fields carry the "unspecified" sentinel.
type MediaMessage struct {
	MessageMeta
	MimeType string `json:"mime_type"`
	Size     string `json:"size"`
	FilePath string `json:"file_path"`
}

// AckPayload is the payload for delivery receipts.
type AckPayload struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Code   int    `json:"code"`
	Status string `json:"status"`
}

// StatePayload is the payload for connection-state changes.
type StatePayload struct {
	State       string `json:"state"`
	Description string `json:"description"`
}

// CallPayload is the payload for incoming calls. Booleans are rendered as
// yes/no indicators.
type CallPayload struct {
	ID        string `json:"id"`
	Peer      string `json:"peer"`
	OfferTime string `json:"offer_time"`
	Video     string `json:"video"`
	Group     string `json:"group"`
	Missed    string `json:"missed"`
}

// NormalizeMessage classifies a raw message by content type and produces
// the normalized event.
func NormalizeMessage(session string, m waclient.RawMessage) *Event {
	meta := MessageMeta{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Timestamp: formatEpoch(m.Timestamp),
		FromMe:    m.FromMe,
		Sender: SenderInfo{
			ID:       m.Sender.ID,
			Name:     m.Sender.Name,
			PushName: m.Sender.PushName,
		},
	}

	var payload any
	switch m.Type {
	case "location":
		meta.Kind = "location"
		payload = LocationMessage{
			MessageMeta: meta,
			Latitude:    m.Latitude,
			Longitude:   m.Longitude,
		}

	case "vcard", "contact":
		meta.Kind = "contact"
		full, phone, name := parseVCard(m.VCard)
		payload = ContactMessage{
			MessageMeta: meta,
			FullName:    full,
			Phone:       phone,
			Name:        name,
		}

	case "ptt", "audio", "image":
		meta.Kind = m.Type
		payload = MediaMessage{
			MessageMeta: meta,
			MimeType:    orUnspecified(m.MimeType),
			Size:        sizeOrUnspecified(m.Size),
			FilePath:    orUnspecified(m.FilePath),
		}

	default:
		// "chat" and anything else message-shaped is treated as text
		meta.Kind = "text"
		payload = TextMessage{
			MessageMeta: meta,
			Body:        m.Body,
			Viewed:      m.Viewed,
			Emojis:      ExtractEmojis(m.Body),
		}
	}

	return newEvent(TypeMessage, session, m.Timestamp, payload)
}

// NormalizeAck produces the normalized event for a delivery receipt.
func NormalizeAck(session string, a waclient.Ack) *Event {
	return newEvent(TypeAck, session, 0, AckPayload{
		ID:     a.ID,
		From:   a.From,
		To:     a.To,
		Code:   a.Code,
		Status: DescribeAck(a.Code),
	})
}

// NormalizeState produces the normalized event for a state change.
func NormalizeState(session string, s waclient.StateChange) *Event {
	return newEvent(TypeState, session, 0, StatePayload{
		State:       string(s.State),
		Description: DescribeState(string(s.State)),
	})
}

// NormalizeCall produces the normalized event for an incoming call.
func NormalizeCall(session string, c waclient.IncomingCall) *Event {
	return newEvent(TypeCall, session, c.OfferTime, CallPayload{
		ID:        c.ID,
		Peer:      c.Peer,
		OfferTime: formatEpoch(c.OfferTime),
		Video:     yesNo(c.IsVideo),
		Group:     yesNo(c.IsGroup),
		Missed:    yesNo(c.Missed),
	})
}

// NormalizeRaw wraps a callback of an unrecognized origin, passing the
// payload through unchanged.
func NormalizeRaw(session string, typ string, payload any) *Event {
	return newEvent(Type(typ), session, 0, payload)
}

// DescribeAck maps a numeric ack code to a human description. The mapping
// is total: unknown codes map to "unknown status".
func DescribeAck(code int) string {
	switch code {
	case 0:
		return "sent/pending"
	case 1:
		return "server-received"
	case 2:
		return "recipient-received"
	case 3:
		return "read"
	default:
		return "unknown status"
	}
}

// DescribeState maps a raw state token to a human description.
func DescribeState(state string) string {
	switch state {
	case "CONNECTED":
		return "connected to the network"
	case "DISCONNECTED":
		return "disconnected from the network"
	case "TIMEOUT":
		return "connection timed out"
	default:
		return "unknown state"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orUnspecified(s string) string {
	if s == "" {
		return unspecified
	}
	return s
}

func sizeOrUnspecified(n int64) string {
	if n <= 0 {
		return unspecified
	}
	return strconv.FormatInt(n, 10)
}

// telWaidPattern extracts the account id and display remainder from a vCard
// TEL line of the form "TEL;...;waid=<digits>:<rest>".
var telWaidPattern = regexp.MustCompile(`waid=(\d+):(.+)`)

// parseVCard pulls the full name and phone number out of a vCard payload.
// Missing pieces come back empty; the caller emits them as-is.
func parseVCard(raw string) (fullName, phone, name string) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "FN:"):
			fullName = strings.TrimPrefix(line, "FN:")
		case strings.HasPrefix(line, "TEL"):
			if m := telWaidPattern.FindStringSubmatch(line); m != nil {
				phone = m[1]
				name = strings.TrimSpace(m[2])
			}
		}
	}
	return fullName, phone, name
}
