// ABOUTME: In-memory fan-out broadcaster for normalized events.
// ABOUTME: Two scopes: message events only, or all event types merged.

package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/zapgate/zapgate/internal/event"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Scope selects which event stream a subscriber attaches to.
type Scope string

const (
	// ScopeMessages receives message events only.
	ScopeMessages Scope = "messages"
	// ScopeAll receives every event type merged together.
	ScopeAll Scope = "all"
)

// Broadcaster provides in-memory pub/sub for normalized events. There is no
// replay: subscribers attached after an event was published never receive it.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Scope]map[string]chan *event.Event
	logger      *slog.Logger
	closed      bool
}

// New creates a broadcaster. Pass nil logger for default.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[Scope]map[string]chan *event.Event),
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers a subscriber on the given scope. Returns a channel
// that receives events and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, scope Scope) (<-chan *event.Event, string) {
	subID := uuid.New().String()
	ch := make(chan *event.Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[scope]; !ok {
		b.subscribers[scope] = make(map[string]chan *event.Event)
	}
	b.subscribers[scope][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "scope", scope, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(scope, subID)
	}()

	return ch, subID
}

// Publish delivers an event to every active subscriber whose scope matches.
// Message events reach both scopes; everything else reaches ScopeAll only.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(ev *event.Event) {
	scopes := []Scope{ScopeAll}
	if ev.Type == event.TypeMessage {
		scopes = append(scopes, ScopeMessages)
	}

	// The read lock is held across the sends so Unsubscribe/Close cannot
	// close a channel mid-dispatch. Sends are non-blocking, so the lock is
	// never held for longer than the fan-out itself.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, scope := range scopes {
		for _, ch := range b.subscribers[scope] {
			select {
			case ch <- ev:
				// Sent
			default:
				// Subscriber channel full, drop the event for this subscriber
				b.logger.Debug("dropped event for slow subscriber", "event_id", ev.ID)
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(scope Scope, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[scope]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, scope)
	}

	b.logger.Debug("subscriber removed", "scope", scope, "sub_id", subID)
}

// SubscriberCount reports the number of active subscriptions across scopes.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for scope, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, scope)
	}

	b.logger.Debug("broadcaster closed")
}
