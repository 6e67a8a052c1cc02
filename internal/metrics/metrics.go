// ABOUTME: Prometheus instrumentation for the event pipeline.
// ABOUTME: Counts normalized, suppressed and delivered events plus live subscribers.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline counters. A nil *Metrics is valid and
// records nothing, so callers never need to guard instrumentation sites.
type Metrics struct {
	registry *prometheus.Registry

	EventsNormalized  *prometheus.CounterVec
	EventsSuppressed  prometheus.Counter
	WebhookDeliveries prometheus.Counter
	WebhookRetries    prometheus.Counter
	WebhookDrops      *prometheus.CounterVec
	Subscribers       prometheus.Gauge
	SessionsActive    prometheus.Gauge
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		EventsNormalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zapgate_events_normalized_total",
			Help: "Normalized events produced, by event type.",
		}, []string{"event_type"}),
		EventsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "zapgate_events_suppressed_total",
			Help: "Events suppressed by the dedupe window.",
		}),
		WebhookDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "zapgate_webhook_deliveries_total",
			Help: "Successful webhook deliveries.",
		}),
		WebhookRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "zapgate_webhook_retries_total",
			Help: "Webhook delivery retries.",
		}),
		WebhookDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zapgate_webhook_drops_total",
			Help: "Webhook deliveries dropped after exhausting the retry budget, by failure class.",
		}, []string{"class"}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zapgate_stream_subscribers",
			Help: "Currently attached stream subscribers.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zapgate_sessions_active",
			Help: "Currently registered sessions.",
		}),
	}
}

// Handler returns the scrape handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EventNormalized records one normalized event of the given type.
func (m *Metrics) EventNormalized(eventType string) {
	if m == nil {
		return
	}
	m.EventsNormalized.WithLabelValues(eventType).Inc()
}

// EventSuppressed records one dedupe suppression.
func (m *Metrics) EventSuppressed() {
	if m == nil {
		return
	}
	m.EventsSuppressed.Inc()
}

// WebhookDelivered implements webhook.Stats.
func (m *Metrics) WebhookDelivered() {
	if m == nil {
		return
	}
	m.WebhookDeliveries.Inc()
}

// WebhookRetried implements webhook.Stats.
func (m *Metrics) WebhookRetried() {
	if m == nil {
		return
	}
	m.WebhookRetries.Inc()
}

// WebhookDropped implements webhook.Stats.
func (m *Metrics) WebhookDropped(class string) {
	if m == nil {
		return
	}
	m.WebhookDrops.WithLabelValues(class).Inc()
}

// SubscriberAttached adjusts the subscriber gauge upward.
func (m *Metrics) SubscriberAttached() {
	if m == nil {
		return
	}
	m.Subscribers.Inc()
}

// SubscriberDetached adjusts the subscriber gauge downward.
func (m *Metrics) SubscriberDetached() {
	if m == nil {
		return
	}
	m.Subscribers.Dec()
}

// SetSessions records the current registered-session count.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}
