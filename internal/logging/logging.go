// Package logging builds the process-wide slog logger. Every line carries a
// service attribute so aquaguard entries are filterable when logs from the
// classifier and the dashboard land in the same sink.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

const serviceName = "aquaguard"

func NewLogger(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h).With("service", serviceName)
}

// ParseLevel maps a config log_level string to a slog level, defaulting to
// info for unknown values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
