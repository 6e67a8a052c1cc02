// ABOUTME: HTTP API handlers for session management, sends and the event ledger.
// ABOUTME: Routes follow the session registry's error contract onto status codes.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zapgate/zapgate/internal/session"
	"github.com/zapgate/zapgate/internal/store"
)

// SendMessageRequest is the JSON request body for POST /sessions/{name}/messages.
type SendMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendContactRequest is the JSON request body for POST /sessions/{name}/contacts.
type SendContactRequest struct {
	To      string `json:"to"`
	Contact string `json:"contact"`
	Name    string `json:"name"`
}

// SendLocationRequest is the JSON request body for POST /sessions/{name}/locations.
type SendLocationRequest struct {
	To    string  `json:"to"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Title string  `json:"title"`
}

// SessionStatusResponse is the JSON response for GET /sessions/{name}/status.
type SessionStatusResponse struct {
	Session string `json:"session"`
	Status  string `json:"status"`
}

// ListSessionsResponse is the JSON response for GET /sessions.
type ListSessionsResponse struct {
	Sessions []string `json:"sessions"`
}

// ListEventsResponse is the JSON response for GET /events.
type ListEventsResponse struct {
	Events []*store.LedgerEvent `json:"events"`
	Count  int                  `json:"count"`
}

func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if _, err := g.sessions.Create(name); err != nil {
		g.logger.Error("failed to create session", "session", name, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to start session client")
		return
	}
	g.metrics.SetSessions(g.sessions.Count())

	g.writeJSON(w, http.StatusCreated, map[string]string{
		"session": name,
		"status":  "Session created",
	})
}

func (g *Gateway) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := g.sessions.Remove(name); err != nil {
		g.sendJSONError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", name))
		return
	}
	g.metrics.SetSessions(g.sessions.Count())

	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleReconnectSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	err := g.sessions.Reconnect(name)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		g.sendJSONError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", name))
		return
	case err != nil:
		g.logger.Error("failed to reconnect session", "session", name, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to restart session client")
		return
	}
	g.metrics.SetSessions(g.sessions.Count())

	g.writeJSON(w, http.StatusOK, map[string]string{
		"session": name,
		"status":  "Session reconnected",
	})
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: g.sessions.List()})
}

// handleSessionStatus always answers 200; unknown names get a descriptive
// not-found status line rather than an error.
func (g *Gateway) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g.writeJSON(w, http.StatusOK, SessionStatusResponse{
		Session: name,
		Status:  g.sessions.Status(name),
	})
}

func (g *Gateway) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	img, err := g.sessions.QRImage(name)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"message": fmt.Sprintf("no QR code available for session %q", name),
		})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	req, err := parseSendMessageRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.respondToSend(w, name, "Message sent",
		g.sessions.SendText(r.Context(), name, req.To, req.Message))
}

func (g *Gateway) handleSendContact(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req SendContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Contact == "" {
		g.sendJSONError(w, http.StatusBadRequest, "to and contact are required")
		return
	}

	g.respondToSend(w, name, "Contact sent",
		g.sessions.SendContactCard(r.Context(), name, req.To, req.Contact, req.Name))
}

func (g *Gateway) handleSendLocation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req SendLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" {
		g.sendJSONError(w, http.StatusBadRequest, "to is required")
		return
	}

	g.respondToSend(w, name, "Location sent",
		g.sessions.SendLocation(r.Context(), name, req.To, req.Lat, req.Lng, req.Title))
}

// respondToSend maps a registry send result onto the HTTP contract: unknown
// session 404, delivery failure 502, success 200 with a status line.
func (g *Gateway) respondToSend(w http.ResponseWriter, name, okStatus string, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		g.sendJSONError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", name))
	case errors.Is(err, session.ErrDelivery):
		g.logger.Warn("message delivery failed", "session", name, "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "message delivery failed")
	case err != nil:
		g.logger.Error("unexpected send failure", "session", name, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	default:
		g.writeJSON(w, http.StatusOK, map[string]string{"status": okStatus})
	}
}

func (g *Gateway) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := g.store.ListEvents(r.Context())
	if err != nil {
		g.logger.Error("reading event ledger", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusOK, ListEventsResponse{Events: events, Count: len(events)})
}

// handleIngestEvent is the inbound webhook receiver. Bodies are acknowledged
// and logged; the gateway does not re-enter its own pipeline with them.
func (g *Gateway) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	g.logger.Info("inbound event received",
		"event_type", body["event_type"], "session", body["session"])
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "Event received"})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"sessions":    g.sessions.Count(),
		"subscribers": g.hub.SubscriberCount(),
	})
}

// writeJSON writes a JSON response body with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("encoding response body", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseSendMessageRequest parses and validates a SendMessageRequest from the
// given reader.
func parseSendMessageRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.To == "" {
		return nil, errors.New("to is required")
	}
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	return &req, nil
}
