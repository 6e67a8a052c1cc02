// ABOUTME: Live event streaming over SSE and WebSocket.
// ABOUTME: Subscribers attach to a hub scope; slow consumers lose events, never block.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/zapgate/zapgate/internal/hub"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// scopeFromQuery resolves the subscription scope from the scope query
// parameter. Absent means the full merged stream; messages-only is the
// opt-in filter.
func scopeFromQuery(r *http.Request) (hub.Scope, error) {
	switch s := r.URL.Query().Get("scope"); s {
	case "", string(hub.ScopeAll):
		return hub.ScopeAll, nil
	case string(hub.ScopeMessages):
		return hub.ScopeMessages, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// handleEventStream serves GET /events/stream as Server-Sent Events. Events
// published after the subscription attaches are streamed until the client
// disconnects; there is no replay.
func (g *Gateway) handleEventStream(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, subID := g.hub.Subscribe(r.Context(), scope)
	g.metrics.SubscriberAttached()
	defer g.metrics.SubscriberDetached()
	g.logger.Info("stream subscriber attached", "subscription", subID, "scope", string(scope))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{
		"subscription": subID,
		"scope":        string(scope),
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			g.writeSSEEvent(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one SSE frame with the given event name and JSON data.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, name string, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("marshaling SSE event", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", name)
	fmt.Fprintf(w, "data: %s\n\n", body)
}

// handleEventWS serves GET /events/ws, streaming events over a WebSocket.
// The read side only watches for the client closing the connection.
func (g *Gateway) handleEventWS(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch, subID := g.hub.Subscribe(ctx, scope)
	g.metrics.SubscriberAttached()
	defer g.metrics.SubscriberDetached()
	g.logger.Info("websocket subscriber attached", "subscription", subID, "scope", string(scope))

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				g.logger.Debug("websocket write failed, detaching",
					"subscription", subID, "error", err)
				return
			}
		}
	}
}
