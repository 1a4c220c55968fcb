// Package logging configures the process-wide slog logger used by
// both the relay and the agent, plus the startup banner and invite
// link printing.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level is the global atomic log level, adjustable at runtime.
var Level = new(slog.LevelVar) // default: INFO

// Setup installs the default slog logger. Interactive terminals get
// colored tint output; everything else (Docker, CI, systemd) gets
// JSON lines. CODEHIVE_LOG_LEVEL overrides the initial level.
func Setup() {
	if s := os.Getenv("CODEHIVE_LOG_LEVEL"); s != "" {
		if l, err := ParseLevel(s); err == nil {
			Level.Set(l)
		}
	}

	var handler slog.Handler
	if stderrIsTTY() {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      Level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: Level,
		})
	}
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the global log level.
func SetLevel(l slog.Level) {
	Level.Set(l)
}

// GetLevel returns the current global log level.
func GetLevel() slog.Level {
	return Level.Level()
}

// ParseLevel converts "debug", "info", "warn", or "error" to the
// corresponding slog.Level. Case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.ToUpper(s)))
	return l, err
}
