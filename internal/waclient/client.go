// ABOUTME: Boundary interface to the underlying messaging-client library.
// ABOUTME: Defines the Client contract, raw callback payloads, and the Factory hook.

package waclient

import "context"

// State is the raw connection-state token reported by a client.
type State string

const (
	StateStarting     State = "STARTING"
	StateQRCode       State = "QRCODE"
	StateConnected    State = "CONNECTED"
	StateDisconnected State = "DISCONNECTED"
	StateTimeout      State = "TIMEOUT"
)

// Sender identifies the account that produced a message.
type Sender struct {
	ID       string
	Name     string
	PushName string
}

// RawMessage is a message callback as delivered by the client library,
// before any normalization. Type discriminates the content: "chat",
// "location", "vcard", "ptt", "audio" or "image".
type RawMessage struct {
	ID        string
	From      string
	To        string
	Body      string
	Type      string
	Timestamp int64 // epoch seconds
	FromMe    bool
	Viewed    bool
	Sender    Sender

	// Location fields
	Latitude  float64
	Longitude float64

	// Media fields
	MimeType string
	Size     int64
	FilePath string

	// Raw vCard payload for contact-card messages
	VCard string
}

// Ack is a delivery receipt for a previously sent message.
type Ack struct {
	ID   string
	From string
	To   string
	Code int
}

// StateChange reports a connection-state transition.
type StateChange struct {
	State State
}

// IncomingCall reports a voice or video call offer.
type IncomingCall struct {
	ID        string
	Peer      string
	OfferTime int64 // epoch seconds
	IsVideo   bool
	IsGroup   bool
	Missed    bool
}

// QRCode carries an authentication QR emission: the base64 data-URI form
// plus an ASCII-art rendering for terminal display.
type QRCode struct {
	DataURI string
	ASCII   string
}

// Handlers receives the asynchronous callbacks a client emits. Nil fields
// are skipped. Callbacks for a single client are invoked in emission order.
type Handlers struct {
	OnMessage      func(RawMessage)
	OnAck          func(Ack)
	OnStateChange  func(StateChange)
	OnIncomingCall func(IncomingCall)
	OnQR           func(QRCode)
}

// Config carries per-session client settings.
type Config struct {
	Session  string
	Headless bool
}

// Client is the handle to one live messaging connection. Implementations
// perform the actual protocol work; zapgate only consumes this surface.
type Client interface {
	// SendText sends a plain text message to the given recipient.
	SendText(ctx context.Context, to, body string) error

	// SendContactVcard sends a contact card for the given contact ID.
	SendContactVcard(ctx context.Context, to, contact, name string) error

	// SendLocation sends a location pin with an optional title.
	SendLocation(ctx context.Context, to string, lat, lng float64, title string) error

	// ConnectionState reports the current raw connection-state token.
	ConnectionState() State

	// Close shuts the connection down. No callbacks are delivered after
	// Close returns.
	Close() error
}

// Factory instantiates a client bound to a session and its handlers.
type Factory func(cfg Config, h Handlers) (Client, error)
