package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger writes JSON to stdout at the level named by LOG_LEVEL.
func NewLogger(service string) *slog.Logger {
	return NewLoggerTo(service, os.Stdout, os.Getenv("LOG_LEVEL"))
}

// NewLoggerTo builds the JSON service logger on an arbitrary writer.
func NewLoggerTo(service string, w io.Writer, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(h).With("service", service)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
