package termshare

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChronologicalWrap(t *testing.T) {
	sr := newScreenRing(8)
	sr.Write([]byte("abcdef"))
	out, ok := sr.snapshot()
	require.True(t, ok)
	assert.Equal(t, "abcdef", out)

	// Nothing new since the last snapshot.
	_, ok = sr.snapshot()
	assert.False(t, ok)

	sr.Write([]byte("ghij"))
	out, ok = sr.snapshot()
	require.True(t, ok)
	assert.Equal(t, "cdefghij", out)
	assert.Len(t, out, 8)
}

func TestRunCapturesOutput(t *testing.T) {
	var mu sync.Mutex
	var chunks []string
	share := func(out string) {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, out)
	}

	code, err := Run(context.Background(), "echo hello from the hive", t.TempDir(), share)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, chunks)
	assert.Contains(t, strings.Join(chunks, ""), "hello from the hive")
}

func TestRunReportsExitCode(t *testing.T) {
	code, err := Run(context.Background(), "exit 3", t.TempDir(), func(string) {})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Run(ctx, "sleep 30", t.TempDir(), func(string) {})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}
