// Package testutil holds small helpers shared by tests that wait on
// asynchronous relay or agent state.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Watcher debounce, client reconnect, and webhook delivery all settle
// well under this; anything slower is a real failure.
const (
	eventuallyTimeout = 5 * time.Second
	eventuallyTick    = 10 * time.Millisecond
)

// RequireEventually polls condition until it holds or the shared
// timeout elapses, failing the test immediately on timeout.
func RequireEventually(t *testing.T, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, condition, eventuallyTimeout, eventuallyTick, msgAndArgs...)
}
