// ABOUTME: Thread-safe TTL cache suppressing redundant event deliveries.
// ABOUTME: Keyed by (session, event type); one delivery per key per window.

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/zapgate/zapgate/internal/event"
)

// cacheEntry stores the insertion time, the last event seen for the key and
// the list element used for O(1) eviction.
type cacheEntry struct {
	insertedAt time.Time
	last       *event.Event
	element    *list.Element
}

// Cache suppresses redundant re-delivery of events sharing a (session,
// event type) key within a trailing window. Expiry is measured from
// insertion, never refreshed by suppressed duplicates: a steady stream of
// same-key events yields exactly one delivery per window. The cache is
// size-limited, evicting the oldest key at capacity.
type Cache struct {
	mu      sync.RWMutex
	seen    map[string]*cacheEntry
	order   *list.List // keys in insertion order (oldest at front)
	window  time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the given suppression window and maximum
// size. A background goroutine periodically cleans up expired entries.
func New(window time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Key computes the suppression key for an event. The key is deliberately
// coarse: all events of one type for one session collapse together.
func Key(session string, typ event.Type) string {
	return session + ":" + string(typ)
}

// ShouldSuppress atomically checks whether an event with the same key was
// delivered within the window. Returns true to suppress without updating the
// stored entry; otherwise records the event with a fresh window and returns
// false (deliver).
func (c *Cache) ShouldSuppress(ev *event.Event) bool {
	key := Key(ev.Session, ev.Type)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if ok && time.Since(entry.insertedAt) < c.window {
		return true
	}

	c.insertLocked(key, ev)
	return false
}

// Last returns the most recently delivered event for a key, or nil. Expired
// entries still pending cleanup are not reported.
func (c *Cache) Last(session string, typ event.Type) *event.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[Key(session, typ)]
	if !ok || time.Since(entry.insertedAt) >= c.window {
		return nil
	}
	return entry.last
}

// insertLocked records a delivered event. Must be called with mu held.
func (c *Cache) insertLocked(key string, ev *event.Event) {
	now := time.Now()

	// An expired entry for the same key is replaced in place
	if entry, exists := c.seen[key]; exists {
		entry.insertedAt = now
		entry.last = ev
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{
		insertedAt: now,
		last:       ev,
		element:    elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.insertedAt) >= c.window {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
