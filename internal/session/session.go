// ABOUTME: One registered session: client handle, lifecycle, QR artifact and pipeline.
// ABOUTME: A single-writer goroutine normalizes raw callbacks in emission order.

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zapgate/zapgate/internal/event"
	"github.com/zapgate/zapgate/internal/waclient"
)

// rawEventBufferSize is the pipeline channel buffer per session.
const rawEventBufferSize = 256

// EventSink consumes normalized events produced by session pipelines.
// Consume is called from one goroutine per session, in emission order for
// that session; calls for different sessions may be concurrent.
type EventSink interface {
	Consume(ctx context.Context, ev *event.Event)
}

// rawEvent is the typed union flowing through a session pipeline. Exactly
// one field is set.
type rawEvent struct {
	msg   *waclient.RawMessage
	ack   *waclient.Ack
	state *waclient.StateChange
	call  *waclient.IncomingCall
}

// Session holds the live client handle and per-session state. The registry
// owns the handle exclusively: there is at most one per name.
type Session struct {
	name   string
	logger *slog.Logger

	mu        sync.RWMutex
	client    waclient.Client
	lifecycle Lifecycle
	qr        []byte
	closed    bool

	events chan rawEvent
	done   chan struct{}
}

func newSession(name string, logger *slog.Logger) *Session {
	return &Session{
		name:      name,
		logger:    logger.With("session", name),
		lifecycle: LifecycleUninitialized,
		events:    make(chan rawEvent, rawEventBufferSize),
		done:      make(chan struct{}),
	}
}

// handlers builds the callback set wiring this session's client into the
// normalization pipeline and the QR capture path.
func (s *Session) handlers() waclient.Handlers {
	return waclient.Handlers{
		OnMessage: func(m waclient.RawMessage) {
			s.enqueue(rawEvent{msg: &m})
		},
		OnAck: func(a waclient.Ack) {
			s.enqueue(rawEvent{ack: &a})
		},
		OnStateChange: func(sc waclient.StateChange) {
			// Lifecycle moves synchronously so registry-level checks see
			// the transition before the normalized event lands downstream.
			s.applyState(sc.State)
			s.enqueue(rawEvent{state: &sc})
		},
		OnIncomingCall: func(c waclient.IncomingCall) {
			s.enqueue(rawEvent{call: &c})
		},
		OnQR: s.captureQR,
	}
}

// enqueue hands a raw callback to the pipeline. Events for a closed session
// are dropped; the client was already told to stop emitting.
func (s *Session) enqueue(ev rawEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// run is the session's single-writer pipeline: it normalizes raw events in
// order and hands them to the sink. Exits when the session closes and the
// channel drains, so events already accepted are still delivered.
func (s *Session) run(sink EventSink) {
	defer close(s.done)

	ctx := context.Background()
	for ev := range s.events {
		var norm *event.Event
		switch {
		case ev.msg != nil:
			norm = event.NormalizeMessage(s.name, *ev.msg)
		case ev.ack != nil:
			norm = event.NormalizeAck(s.name, *ev.ack)
		case ev.state != nil:
			norm = event.NormalizeState(s.name, *ev.state)
		case ev.call != nil:
			norm = event.NormalizeCall(s.name, *ev.call)
		default:
			continue
		}
		sink.Consume(ctx, norm)
	}
}

// applyState advances the lifecycle for a raw state token. A successful
// authentication clears the pending QR artifact.
func (s *Session) applyState(st waclient.State) {
	lc, ok := lifecycleForState(st)
	if !ok {
		s.logger.Debug("ignoring unknown state token", "state", string(st))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.lifecycle = lc
	if lc == LifecycleConnected {
		s.qr = nil
	}
}

// captureQR decodes a QR data-URI emission and stores the image bytes,
// replacing any prior artifact. Malformed payloads are logged and discarded;
// a QR failure must never crash session creation.
func (s *Session) captureQR(qr waclient.QRCode) {
	img, err := decodeDataURI(qr.DataURI)
	if err != nil {
		s.logger.Warn("discarding malformed QR payload", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.qr = img
	s.lifecycle = LifecycleQRPending
	s.mu.Unlock()

	s.logger.Info("QR code captured", "bytes", len(img))
	if qr.ASCII != "" {
		s.logger.Debug("QR code for terminal scan\n" + qr.ASCII)
	}
}

// Lifecycle reports the session's current lifecycle state.
func (s *Session) Lifecycle() Lifecycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifecycle
}

// qrImage returns a copy of the stored QR bytes, or nil.
func (s *Session) qrImage() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.qr == nil {
		return nil
	}
	out := make([]byte, len(s.qr))
	copy(out, s.qr)
	return out
}

// close shuts the client down first, so no further callbacks are dispatched,
// then drains the pipeline. Events already in flight still reach the sink.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.lifecycle = LifecycleClosed
	cli := s.client
	s.mu.Unlock()

	if cli != nil {
		if err := cli.Close(); err != nil {
			s.logger.Warn("error closing client", "error", err)
		}
	}

	close(s.events)
	<-s.done
}
