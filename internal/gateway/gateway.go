// ABOUTME: Gateway orchestrator wiring sessions, normalizer sink, hub, ledger and webhook.
// ABOUTME: Owns the HTTP server lifecycle and graceful shutdown ordering.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zapgate/zapgate/internal/config"
	"github.com/zapgate/zapgate/internal/dedupe"
	"github.com/zapgate/zapgate/internal/event"
	"github.com/zapgate/zapgate/internal/hub"
	"github.com/zapgate/zapgate/internal/metrics"
	"github.com/zapgate/zapgate/internal/session"
	"github.com/zapgate/zapgate/internal/store"
	"github.com/zapgate/zapgate/internal/waclient"
	"github.com/zapgate/zapgate/internal/webhook"
)

// shutdownTimeout bounds the HTTP server drain during shutdown.
const shutdownTimeout = 10 * time.Second

// Gateway composes the event pipeline and serves the HTTP API. It is the
// sink for every session pipeline: normalized events land in Consume and
// flow ledger → hub → dedupe → webhook.
type Gateway struct {
	config   *config.Config
	logger   *slog.Logger
	sessions *session.Manager
	hub      *hub.Broadcaster
	dedupe   *dedupe.Cache
	webhook  *webhook.Dispatcher
	store    store.Store
	metrics  *metrics.Metrics

	httpServer *http.Server

	// stubs holds the stub client factory when the stub driver is active,
	// so tests and tooling can script session traffic.
	stubs *waclient.StubFactory
}

// New assembles a gateway from configuration. The returned gateway is not
// serving yet; call Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	g := &Gateway{
		config: cfg,
		logger: logger.With("component", "gateway"),
	}

	if cfg.Metrics.Enabled {
		g.metrics = metrics.New()
	}

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening event ledger: %w", err)
	}
	g.store = st

	g.hub = hub.New(logger)
	g.dedupe = dedupe.New(cfg.Dedupe.Window, cfg.Dedupe.MaxEntries)
	g.webhook = webhook.New(webhook.Config{
		URL:          cfg.Webhook.URL,
		Timeout:      cfg.Webhook.Timeout,
		RetryDelay:   cfg.Webhook.RetryDelay,
		RetryTimeout: cfg.Webhook.RetryTimeout,
	}, logger, g.metrics)

	factory, err := g.clientFactory(cfg.Sessions.Driver)
	if err != nil {
		return nil, err
	}
	g.sessions = session.NewManager(factory, cfg.Sessions.Headless, g, logger)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// clientFactory resolves the configured session driver.
func (g *Gateway) clientFactory(driver string) (waclient.Factory, error) {
	switch driver {
	case "stub":
		g.stubs = waclient.NewStubFactory()
		g.stubs.AutoAuth = true
		return g.stubs.New, nil
	default:
		return nil, fmt.Errorf("unknown sessions driver %q", driver)
	}
}

// Consume implements session.EventSink. Called once per normalized event,
// in emission order per session.
func (g *Gateway) Consume(ctx context.Context, ev *event.Event) {
	g.metrics.EventNormalized(string(ev.Type))

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		g.logger.Error("marshaling event payload", "event_id", ev.ID, "error", err)
		payload = []byte("{}")
	}
	if err := g.store.SaveEvent(ctx, &store.LedgerEvent{
		ID:        ev.ID,
		Session:   ev.Session,
		EventType: string(ev.Type),
		Timestamp: ev.Timestamp,
		Payload:   payload,
	}); err != nil {
		g.logger.Error("appending event to ledger", "event_id", ev.ID, "error", err)
	}

	g.hub.Publish(ev)

	if g.dedupe.ShouldSuppress(ev) {
		g.metrics.EventSuppressed()
		g.logger.Debug("suppressing duplicate event",
			"session", ev.Session, "event_type", string(ev.Type))
		return
	}

	g.webhook.Deliver(ev)
}

// routes builds the HTTP route table.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sessions", g.handleListSessions)
	mux.HandleFunc("POST /sessions/{name}", g.handleCreateSession)
	mux.HandleFunc("DELETE /sessions/{name}", g.handleRemoveSession)
	mux.HandleFunc("POST /sessions/{name}/reconnect", g.handleReconnectSession)
	mux.HandleFunc("GET /sessions/{name}/status", g.handleSessionStatus)
	mux.HandleFunc("GET /sessions/{name}/qr", g.handleSessionQR)
	mux.HandleFunc("POST /sessions/{name}/messages", g.handleSendMessage)
	mux.HandleFunc("POST /sessions/{name}/contacts", g.handleSendContact)
	mux.HandleFunc("POST /sessions/{name}/locations", g.handleSendLocation)

	mux.HandleFunc("GET /events", g.handleListEvents)
	mux.HandleFunc("POST /events", g.handleIngestEvent)
	mux.HandleFunc("GET /events/stream", g.handleEventStream)
	mux.HandleFunc("GET /events/ws", g.handleEventWS)

	mux.HandleFunc("GET /health", g.handleHealth)

	if g.config.Metrics.Enabled {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
	}

	return mux
}

// Run serves HTTP until the context is cancelled or the server fails, then
// shuts everything down in pipeline order.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested")
	case serveErr = <-errCh:
		g.logger.Error("HTTP server failed", "error", serveErr)
	}

	if err := g.Shutdown(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Shutdown drains the HTTP server, then tears the pipeline down from the
// sources toward the sinks: sessions first so no new events are produced,
// the webhook dispatcher last so in-flight deliveries finish.
func (g *Gateway) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.sessions.CloseAll()
	g.hub.Close()
	g.webhook.Close()
	g.dedupe.Close()
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing ledger: %w", err))
	}

	g.logger.Info("gateway stopped")
	return errors.Join(errs...)
}
