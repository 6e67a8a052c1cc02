// ABOUTME: End-to-end pipeline tests: raw callback to ledger, hub and webhook sink.
// ABOUTME: Verifies the dedupe window only gates the webhook leg, never the stream.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapgate/zapgate/internal/event"
	"github.com/zapgate/zapgate/internal/hub"
	"github.com/zapgate/zapgate/internal/waclient"
)

func TestPipeline_EndToEnd(t *testing.T) {
	h := newTestHarness(t)

	resp := h.do(t, http.MethodPost, "/sessions/s1", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := h.gw.hub.Subscribe(ctx, hub.ScopeAll)

	h.gw.stubs.Client("s1").EmitMessage(waclient.RawMessage{
		ID:        "m1",
		From:      "5511999999999@c.us",
		Body:      "hello there",
		Type:      "chat",
		Timestamp: 1700000000,
	})

	// Hub delivery.
	select {
	case ev := <-ch:
		assert.Equal(t, event.TypeMessage, ev.Type)
		assert.Equal(t, "s1", ev.Session)
	case <-time.After(time.Second):
		t.Fatal("hub subscriber never received the event")
	}

	// Webhook delivery carries the full normalized event.
	select {
	case body := <-h.webhookBody:
		var delivered map[string]any
		require.NoError(t, json.Unmarshal(body, &delivered))
		assert.Equal(t, "message", delivered["event_type"])
		assert.Equal(t, "s1", delivered["session"])
		payload := delivered["payload"].(map[string]any)
		assert.Equal(t, "hello there", payload["body"])
	case <-time.After(2 * time.Second):
		t.Fatal("webhook sink never received the event")
	}

	// Ledger row.
	listResp := h.do(t, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	defer listResp.Body.Close()
	var list ListEventsResponse
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "message", list.Events[0].EventType)
}

func TestPipeline_DedupeGatesWebhookOnly(t *testing.T) {
	h := newTestHarness(t)

	resp := h.do(t, http.MethodPost, "/sessions/s1", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := h.gw.hub.Subscribe(ctx, hub.ScopeAll)

	stub := h.gw.stubs.Client("s1")
	stub.EmitMessage(waclient.RawMessage{ID: "m1", Type: "chat", Body: "first"})
	stub.EmitMessage(waclient.RawMessage{ID: "m2", Type: "chat", Body: "second"})

	// Both events reach the hub.
	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("hub subscriber missing event %d", i)
		}
	}

	// Both events land in the ledger.
	require.Eventually(t, func() bool {
		n, err := h.gw.store.CountEvents(context.Background())
		return err == nil && n == 2
	}, time.Second, 10*time.Millisecond)

	// Only the first survives the dedupe window on the webhook leg.
	require.Eventually(t, func() bool {
		return h.webhookHits.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(1), h.webhookHits.Load(),
		"a second event of the same type within the window must be suppressed")
}

func TestPipeline_DistinctTypesNotSuppressed(t *testing.T) {
	h := newTestHarness(t)

	resp := h.do(t, http.MethodPost, "/sessions/s1", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	stub := h.gw.stubs.Client("s1")
	stub.EmitMessage(waclient.RawMessage{ID: "m1", Type: "chat", Body: "hi"})
	stub.EmitAck(waclient.Ack{ID: "m1", Code: 3})

	require.Eventually(t, func() bool {
		return h.webhookHits.Load() == 2
	}, 2*time.Second, 10*time.Millisecond, "different event types share no dedupe key")
}
