package timefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 45, 123_000_000, time.UTC)
	ms := Millis(ts)
	assert.Equal(t, int64(1748781045123), ms)
	assert.Equal(t, ts, FromMillis(ms))
}

func TestNowMillisAdvances(t *testing.T) {
	a := NowMillis()
	time.Sleep(2 * time.Millisecond)
	b := NowMillis()
	assert.Greater(t, b, a)
}
