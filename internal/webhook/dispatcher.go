// ABOUTME: Webhook dispatcher delivering normalized events to the HTTP sink.
// ABOUTME: One retry on timeout/connection-reset with an extended timeout; other failures drop.

package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zapgate/zapgate/internal/event"
)

// Config holds the sink address and timing policy.
type Config struct {
	URL          string
	Timeout      time.Duration // first-attempt timeout
	RetryDelay   time.Duration // wait before the single retry
	RetryTimeout time.Duration // extended timeout for the retry
}

// Stats receives delivery outcome notifications. All methods may be called
// concurrently.
type Stats interface {
	WebhookDelivered()
	WebhookRetried()
	WebhookDropped(class string)
}

// noopStats is used when no Stats sink is provided.
type noopStats struct{}

func (noopStats) WebhookDelivered()     {}
func (noopStats) WebhookRetried()       {}
func (noopStats) WebhookDropped(string) {}

// failure classes used for retry decisions and logging.
const (
	classTimeout = "timeout"
	classReset   = "connection-reset"
	classOther   = "other"
)

// Dispatcher POSTs normalized events to the configured sink. Delivery is
// fire-and-forget relative to the triggering event: failures are never
// surfaced to the caller. Transient failures (timeout, connection reset)
// get exactly one retry after RetryDelay with the extended RetryTimeout;
// everything else is logged and dropped immediately.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	stats  Stats
	wg     sync.WaitGroup
}

// New creates a dispatcher for the given sink. Pass nil stats for none.
func New(cfg Config, logger *slog.Logger, stats Stats) *Dispatcher {
	if stats == nil {
		stats = noopStats{}
	}
	return &Dispatcher{
		cfg: cfg,
		// Per-attempt timeouts are carried by the request context, not the
		// client, because the retry uses a longer deadline.
		client: &http.Client{},
		logger: logger.With("component", "webhook"),
		stats:  stats,
	}
}

// Deliver schedules an asynchronous delivery of the event. It never blocks
// the caller: the retry delay is a deferred timer inside the delivery
// goroutine, not a blocking sleep on the pipeline.
func (d *Dispatcher) Deliver(ev *event.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.dispatch(ev)
	}()
}

// Close waits for all in-flight deliveries, including pending retries.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

// dispatch runs the full delivery policy for one event synchronously.
func (d *Dispatcher) dispatch(ev *event.Event) {
	body, err := ev.JSON()
	if err != nil {
		d.logger.Error("failed to serialize event", "event_id", ev.ID, "error", err)
		return
	}

	attempt := 0
	op := func() error {
		attempt++
		timeout := d.cfg.Timeout
		if attempt > 1 {
			timeout = d.cfg.RetryTimeout
			d.stats.WebhookRetried()
			d.logger.Info("retrying webhook delivery",
				"event_id", ev.ID,
				"timeout", timeout)
		}

		err := d.post(body, timeout)
		if err == nil {
			return nil
		}

		switch classify(err) {
		case classTimeout, classReset:
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	// Strict retry budget of one: the constant backoff supplies the fixed
	// delay, WithMaxRetries caps it at a single retry.
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(d.cfg.RetryDelay), 1)
	if err := backoff.Retry(op, policy); err != nil {
		class := classify(err)
		d.stats.WebhookDropped(class)
		d.logger.Error("webhook delivery dropped",
			"event_id", ev.ID,
			"session", ev.Session,
			"attempts", attempt,
			"class", class,
			"error", err)
		return
	}

	d.stats.WebhookDelivered()
	d.logger.Debug("webhook delivered", "event_id", ev.ID, "attempts", attempt)
}

// post performs one POST attempt with the given timeout.
func (d *Dispatcher) post(body []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// statusError marks a completed request that the sink rejected.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("sink returned status %d", e.code)
}

// classify buckets a delivery error into timeout, connection-reset or other.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return classTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return classReset
	}
	// Wrapped transport errors don't always expose the errno
	if strings.Contains(err.Error(), "connection reset") {
		return classReset
	}
	return classOther
}
