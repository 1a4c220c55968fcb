// Package webhook posts room events to per-room HTTP endpoints.
// Delivery is strictly best-effort: a 5 second total-request timeout,
// no retries, errors swallowed and logged.
package webhook

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/CodeHiveAPP/codehive/internal/metrics"
	"github.com/CodeHiveAPP/codehive/internal/protocol"
	"github.com/CodeHiveAPP/codehive/internal/util/timefmt"
)

// Notifier fans out room events to webhooks.
type Notifier struct {
	client *http.Client
}

// New creates a Notifier with the standard 5s timeout.
func New() *Notifier {
	return &Notifier{
		client: &http.Client{Timeout: protocol.WebhookTimeout},
	}
}

// NewWithClient creates a Notifier with a custom HTTP client (tests).
func NewWithClient(client *http.Client) *Notifier {
	return &Notifier{client: client}
}

// Subscribed reports whether cfg covers the event: either the
// specific name or "all".
func Subscribed(cfg *protocol.WebhookConfig, event string) bool {
	if cfg == nil || cfg.URL == "" {
		return false
	}
	for _, e := range cfg.Events {
		if e == protocol.WebhookAll || e == event {
			return true
		}
	}
	return false
}

// Fire posts {event, room, timestamp, ...payload} to the room's
// webhook when it subscribes to the event. The POST runs on its own
// goroutine so relay handlers never block on HTTP.
func (n *Notifier) Fire(cfg *protocol.WebhookConfig, event, roomCode string, payload map[string]any) {
	if !Subscribed(cfg, event) {
		return
	}

	body := map[string]any{
		"event":     event,
		"room":      roomCode,
		"timestamp": timefmt.NowMillis(),
	}
	for k, v := range payload {
		body[k] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		slog.Warn("webhook marshal failed", "room", roomCode, "event", event, "error", err)
		return
	}

	url := cfg.URL
	go func() {
		metrics.WebhookDeliveries.Inc()
		resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
		if err != nil {
			metrics.WebhookFailures.Inc()
			slog.Debug("webhook delivery failed", "room", roomCode, "event", event, "error", err)
			return
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			metrics.WebhookFailures.Inc()
			slog.Debug("webhook rejected", "room", roomCode, "event", event, "status", resp.StatusCode)
		}
	}()
}
