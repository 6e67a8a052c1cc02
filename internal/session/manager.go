// ABOUTME: Registry of named sessions: create, reconnect, remove, send operations.
// ABOUTME: Enforces one client handle per name and routes sends through the lifecycle.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zapgate/zapgate/internal/event"
	"github.com/zapgate/zapgate/internal/waclient"
)

var (
	// ErrSessionNotFound reports an operation against an unregistered name.
	ErrSessionNotFound = errors.New("session not found")

	// ErrClientInit reports a client factory failure during create or reconnect.
	ErrClientInit = errors.New("client initialization failed")

	// ErrQRNotFound reports that no QR artifact is available for a session.
	ErrQRNotFound = errors.New("no QR code available")

	// ErrDelivery reports a send failure, either because the session is not
	// connected or because the client rejected the message.
	ErrDelivery = errors.New("message delivery failed")
)

// Manager is the session registry. All map access is guarded by mu; the
// per-session state has its own lock so slow client work never holds the
// registry lock.
type Manager struct {
	factory  waclient.Factory
	headless bool
	sink     EventSink
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a registry that builds clients through factory and
// feeds normalized events into sink.
func NewManager(factory waclient.Factory, headless bool, sink EventSink, logger *slog.Logger) *Manager {
	return &Manager{
		factory:  factory,
		headless: headless,
		sink:     sink,
		logger:   logger.With("component", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a session under name and starts its client. Creating a
// name that already exists is a no-op returning the existing session.
func (m *Manager) Create(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[name]; ok {
		m.logger.Debug("session already registered", "session", name)
		return s, nil
	}

	s, err := m.startLocked(name)
	if err != nil {
		return nil, err
	}
	m.sessions[name] = s
	m.logger.Info("session created", "session", name, "total", len(m.sessions))
	return s, nil
}

// startLocked builds a session and its client. Caller holds m.mu.
func (m *Manager) startLocked(name string) (*Session, error) {
	s := newSession(name, m.logger)

	cli, err := m.factory(waclient.Config{Session: name, Headless: m.headless}, s.handlers())
	if err != nil {
		return nil, fmt.Errorf("%w: session %q: %v", ErrClientInit, name, err)
	}

	s.mu.Lock()
	s.client = cli
	s.mu.Unlock()

	go s.run(m.sink)
	return s, nil
}

// Remove closes a session's client, drains its pipeline and unregisters it.
// The close completes under the registry lock so a concurrent Create for the
// same name cannot start a second live client while this one is shutting
// down: there is at most one live handle per name.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}

	s.close()
	delete(m.sessions, name)
	m.logger.Info("session removed", "session", name, "total", len(m.sessions))
	return nil
}

// Reconnect tears down a session's client and starts a fresh one under the
// same name. The new session begins uninitialized, with no QR artifact.
func (m *Manager) Reconnect(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.sessions[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}

	old.close()

	fresh, err := m.startLocked(name)
	if err != nil {
		// The old handle is gone either way. Leaving a dead entry behind
		// would shadow a later Create, so unregister on failure.
		delete(m.sessions, name)
		return err
	}
	m.sessions[name] = fresh
	m.logger.Info("session reconnected", "session", name)
	return nil
}

// List returns the registered session names in sorted order.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Status returns a human-readable connection status line for a session.
// Unknown names get a not-found line rather than an error, matching the
// always-200 status endpoint.
func (m *Manager) Status(name string) string {
	s := m.get(name)
	if s == nil {
		return fmt.Sprintf("session %q not found", name)
	}

	s.mu.RLock()
	cli := s.client
	s.mu.RUnlock()
	if cli == nil {
		return fmt.Sprintf("%s (%s)", waclient.StateStarting, event.DescribeState(string(waclient.StateStarting)))
	}

	st := cli.ConnectionState()
	return fmt.Sprintf("%s (%s)", st, event.DescribeState(string(st)))
}

// QRImage returns the current QR artifact for a session.
func (m *Manager) QRImage(name string) ([]byte, error) {
	s := m.get(name)
	if s == nil {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	img := s.qrImage()
	if img == nil {
		return nil, fmt.Errorf("%w: session %q", ErrQRNotFound, name)
	}
	return img, nil
}

// SendText sends a plain text message through the named session.
func (m *Manager) SendText(ctx context.Context, name, to, body string) error {
	cli, err := m.connectedClient(name)
	if err != nil {
		return err
	}
	if err := cli.SendText(ctx, to, body); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// SendContactCard sends a contact card through the named session.
func (m *Manager) SendContactCard(ctx context.Context, name, to, contact, contactName string) error {
	cli, err := m.connectedClient(name)
	if err != nil {
		return err
	}
	if err := cli.SendContactVcard(ctx, to, contact, contactName); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// SendLocation sends a location pin through the named session.
func (m *Manager) SendLocation(ctx context.Context, name, to string, lat, lng float64, title string) error {
	cli, err := m.connectedClient(name)
	if err != nil {
		return err
	}
	if err := cli.SendLocation(ctx, to, lat, lng, title); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// connectedClient resolves a session's client, requiring the session to be
// authenticated before any send goes out.
func (m *Manager) connectedClient(name string) (waclient.Client, error) {
	s := m.get(name)
	if s == nil {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}

	s.mu.RLock()
	cli := s.client
	lc := s.lifecycle
	s.mu.RUnlock()

	if lc != LifecycleConnected || cli == nil {
		return nil, fmt.Errorf("%w: session %q is %s, not connected", ErrDelivery, name, lc)
	}
	return cli, nil
}

// Lifecycle reports the lifecycle of a named session.
func (m *Manager) Lifecycle(name string) (Lifecycle, error) {
	s := m.get(name)
	if s == nil {
		return 0, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	return s.Lifecycle(), nil
}

// CloseAll tears down every registered session and empties the registry.
// Like Remove, the closes happen under the registry lock so no name can be
// re-created with a second live client mid-teardown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		s.close()
	}
	count := len(m.sessions)
	m.sessions = make(map[string]*Session)
	m.logger.Info("all sessions closed", "count", count)
}

func (m *Manager) get(name string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[name]
}
