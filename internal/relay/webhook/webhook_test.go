package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
	"github.com/CodeHiveAPP/codehive/internal/util/testutil"
)

func TestSubscribed(t *testing.T) {
	assert.False(t, Subscribed(nil, protocol.WebhookChat))
	assert.False(t, Subscribed(&protocol.WebhookConfig{URL: ""}, protocol.WebhookChat))

	cfg := &protocol.WebhookConfig{URL: "http://x", Events: []string{protocol.WebhookChat}}
	assert.True(t, Subscribed(cfg, protocol.WebhookChat))
	assert.False(t, Subscribed(cfg, protocol.WebhookJoin))

	all := &protocol.WebhookConfig{URL: "http://x", Events: []string{protocol.WebhookAll}}
	assert.True(t, Subscribed(all, protocol.WebhookConflict))
}

func TestFirePostsJSON(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
	}))
	defer srv.Close()

	n := New()
	cfg := &protocol.WebhookConfig{URL: srv.URL, Events: []string{protocol.WebhookAll}}
	n.Fire(cfg, protocol.WebhookJoin, "HIVE-ABCDEF", map[string]any{"name": "Alice"})

	testutil.RequireEventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	body := bodies[0]
	assert.Equal(t, "join", body["event"])
	assert.Equal(t, "HIVE-ABCDEF", body["room"])
	assert.Equal(t, "Alice", body["name"])
	assert.NotZero(t, body["timestamp"])
}

func TestFireSkipsUnsubscribed(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	n := New()
	cfg := &protocol.WebhookConfig{URL: srv.URL, Events: []string{protocol.WebhookChat}}
	n.Fire(cfg, protocol.WebhookLeave, "HIVE-ABCDEF", nil)
	assert.Zero(t, hits)
}

func TestFireSwallowsDeliveryErrors(t *testing.T) {
	n := New()
	cfg := &protocol.WebhookConfig{URL: "http://127.0.0.1:1/unreachable", Events: []string{protocol.WebhookAll}}
	// Must not panic or block.
	n.Fire(cfg, protocol.WebhookChat, "HIVE-ABCDEF", map[string]any{"content": "hi"})
}
