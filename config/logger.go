package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger from the log settings.
func NewLogger(s Settings, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if s.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
