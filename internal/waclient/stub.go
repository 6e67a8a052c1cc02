// ABOUTME: In-process stub client used by tests and the "stub" driver.
// ABOUTME: Scriptable: callers emit messages, acks, state changes, calls and QR codes.

package waclient

import (
	"context"
	"sync"
)

// demoQR is a 1x1 transparent PNG, emitted by the stub factory so the QR
// endpoint has something to serve in development.
const demoQR = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// SentText records one SendText call made against a stub.
type SentText struct {
	To   string
	Body string
}

// SentVcard records one SendContactVcard call made against a stub.
type SentVcard struct {
	To      string
	Contact string
	Name    string
}

// SentLocation records one SendLocation call made against a stub.
type SentLocation struct {
	To       string
	Lat, Lng float64
	Title    string
}

// Stub is a scriptable in-process Client. It emits no real traffic; tests
// and the stub driver feed it events through the Emit methods, which invoke
// the registered handlers synchronously on the caller's goroutine.
type Stub struct {
	mu       sync.Mutex
	session  string
	handlers Handlers
	state    State
	closed   bool
	sendErr  error

	texts     []SentText
	vcards    []SentVcard
	locations []SentLocation
}

// NewStub creates a stub client for the given session name.
func NewStub(session string, h Handlers) *Stub {
	return &Stub{
		session:  session,
		handlers: h,
		state:    StateStarting,
	}
}

// SendText records the message, or returns the configured send error.
func (s *Stub) SendText(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.texts = append(s.texts, SentText{To: to, Body: body})
	return nil
}

// SendContactVcard records the contact card, or returns the configured send error.
func (s *Stub) SendContactVcard(_ context.Context, to, contact, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.vcards = append(s.vcards, SentVcard{To: to, Contact: contact, Name: name})
	return nil
}

// SendLocation records the location, or returns the configured send error.
func (s *Stub) SendLocation(_ context.Context, to string, lat, lng float64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.locations = append(s.locations, SentLocation{To: to, Lat: lat, Lng: lng, Title: title})
	return nil
}

// ConnectionState reports the stub's current state token.
func (s *Stub) ConnectionState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close marks the stub closed. Emit calls after Close are dropped.
func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Stub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetSendError makes subsequent Send* calls fail with err. Pass nil to clear.
func (s *Stub) SetSendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// SetState updates the state token and emits a state-change callback.
func (s *Stub) SetState(st State) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = st
	h := s.handlers.OnStateChange
	s.mu.Unlock()

	if h != nil {
		h(StateChange{State: st})
	}
}

// EmitMessage delivers a raw message callback.
func (s *Stub) EmitMessage(m RawMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	h := s.handlers.OnMessage
	s.mu.Unlock()

	if h != nil {
		h(m)
	}
}

// EmitAck delivers a delivery-receipt callback.
func (s *Stub) EmitAck(a Ack) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	h := s.handlers.OnAck
	s.mu.Unlock()

	if h != nil {
		h(a)
	}
}

// EmitCall delivers an incoming-call callback.
func (s *Stub) EmitCall(c IncomingCall) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	h := s.handlers.OnIncomingCall
	s.mu.Unlock()

	if h != nil {
		h(c)
	}
}

// EmitQR delivers a QR-code callback.
func (s *Stub) EmitQR(dataURI, ascii string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	h := s.handlers.OnQR
	s.mu.Unlock()

	if h != nil {
		h(QRCode{DataURI: dataURI, ASCII: ascii})
	}
}

// Texts returns a copy of the recorded SendText calls.
func (s *Stub) Texts() []SentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentText, len(s.texts))
	copy(out, s.texts)
	return out
}

// Vcards returns a copy of the recorded SendContactVcard calls.
func (s *Stub) Vcards() []SentVcard {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentVcard, len(s.vcards))
	copy(out, s.vcards)
	return out
}

// Locations returns a copy of the recorded SendLocation calls.
func (s *Stub) Locations() []SentLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentLocation, len(s.locations))
	copy(out, s.locations)
	return out
}

// StubFactory creates Stub clients and retains handles to them so callers
// can script events after creation.
type StubFactory struct {
	mu      sync.Mutex
	clients map[string]*Stub
	nextErr error

	// AutoAuth makes freshly created stubs emit a demo QR code followed by
	// a CONNECTED state change, mimicking a real authentication handshake.
	AutoAuth bool
}

// NewStubFactory creates an empty factory.
func NewStubFactory() *StubFactory {
	return &StubFactory{clients: make(map[string]*Stub)}
}

// New implements Factory.
func (f *StubFactory) New(cfg Config, h Handlers) (Client, error) {
	f.mu.Lock()
	if err := f.nextErr; err != nil {
		f.nextErr = nil
		f.mu.Unlock()
		return nil, err
	}
	st := NewStub(cfg.Session, h)
	f.clients[cfg.Session] = st
	auto := f.AutoAuth
	f.mu.Unlock()

	if auto {
		go func() {
			st.EmitQR(demoQR, "<qr>")
			st.SetState(StateConnected)
		}()
	}
	return st, nil
}

// Client returns the stub created for a session, or nil.
func (f *StubFactory) Client(session string) *Stub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[session]
}

// FailNext makes the next New call fail with err.
func (f *StubFactory) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextErr = err
}
