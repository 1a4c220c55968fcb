// Package timefmt provides epoch-millisecond timestamp helpers.
// All wire-level timestamps in the CodeHive protocol are integer
// milliseconds since the Unix epoch.
package timefmt

import "time"

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Millis converts a time.Time to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts epoch milliseconds back to a time.Time in UTC.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
