// ABOUTME: Tests for the dedupe cache that suppresses redundant event deliveries.
// ABOUTME: Validates window expiry, no-refresh suppression, eviction and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zapgate/zapgate/internal/event"
)

func makeEvent(session string, typ event.Type) *event.Event {
	return &event.Event{
		ID:      "evt-" + session + "-" + string(typ),
		Type:    typ,
		Session: session,
	}
}

func TestCache_FirstDelivery(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)),
		"first event for a key should be delivered")
}

func TestCache_SuppressWithinWindow(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)))
	assert.True(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)),
		"same key within the window should be suppressed")
	assert.True(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)))
}

func TestCache_DistinctKeysDelivered(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)))
	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeAck)),
		"different event type is a different key")
	assert.False(t, cache.ShouldSuppress(makeEvent("s2", event.TypeMessage)),
		"different session is a different key")
}

func TestCache_RedeliveredAfterWindow(t *testing.T) {
	cache := New(20*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)))
	assert.True(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)))

	time.Sleep(30 * time.Millisecond)

	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)),
		"after the window elapses the key should be delivered again")
}

func TestCache_SuppressionDoesNotRefreshWindow(t *testing.T) {
	cache := New(50*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)))

	// Keep hammering the same key past the original window. Expiry is
	// measured from insertion, so the steady stream must not extend it.
	deadline := time.Now().Add(80 * time.Millisecond)
	delivered := 0
	for time.Now().Before(deadline) {
		if !cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)) {
			delivered++
		}
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, 1, delivered, "exactly one re-delivery once the original window expired")
}

func TestCache_LastStoresDeliveredEvent(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	first := makeEvent("s1", event.TypeMessage)
	cache.ShouldSuppress(first)

	second := makeEvent("s1", event.TypeMessage)
	second.ID = "evt-second"
	cache.ShouldSuppress(second)

	// Suppressed events never replace the stored value
	got := cache.Last("s1", event.TypeMessage)
	assert.Equal(t, first.ID, got.ID)
}

func TestCache_Eviction(t *testing.T) {
	cache := New(time.Minute, 2)
	defer cache.Close()

	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)))
	assert.False(t, cache.ShouldSuppress(makeEvent("s2", event.TypeMessage)))
	assert.False(t, cache.ShouldSuppress(makeEvent("s3", event.TypeMessage)))

	// s1 was evicted to make room for s3, so it delivers again
	assert.False(t, cache.ShouldSuppress(makeEvent("s1", event.TypeMessage)))
}

func TestCache_RunCleanupRemovesExpired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.ShouldSuppress(makeEvent("s1", event.TypeMessage))
	cache.ShouldSuppress(makeEvent("s2", event.TypeAck))

	time.Sleep(20 * time.Millisecond)
	cache.runCleanup()

	cache.mu.RLock()
	mapLen := len(cache.seen)
	orderLen := cache.order.Len()
	cache.mu.RUnlock()
	assert.Equal(t, 0, mapLen, "cleanup should remove expired entries from map")
	assert.Equal(t, 0, orderLen, "cleanup should remove expired entries from order list")
}

func TestCache_Concurrent(t *testing.T) {
	cache := New(time.Minute, 1000)
	defer cache.Close()

	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				session := fmt.Sprintf("s%d", id%10)
				cache.ShouldSuppress(makeEvent(session, event.TypeMessage))
				cache.Last(session, event.TypeMessage)
			}
		}(i)
	}

	wg.Wait()

	// Still functional afterwards
	assert.False(t, cache.ShouldSuppress(makeEvent("fresh", event.TypeCall)))
}

func TestCache_AtomicSuppression(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100

	var mu sync.Mutex
	delivered := 0
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if !cache.ShouldSuppress(makeEvent("contested", event.TypeMessage)) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, delivered, "exactly one goroutine should win delivery for the key")
}

func TestCache_Close(t *testing.T) {
	cache := New(time.Minute, 100)
	cache.ShouldSuppress(makeEvent("s1", event.TypeMessage))

	cache.Close()
	cache.Close() // multiple closes must not panic
}
