package main

import (
	"io"
	"log/slog"
	"strings"
)

// parseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
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

// InitLogger initializes the structured logger with JSON output on w.
// Stdout is left to command output.
func InitLogger(w io.Writer, levelStr string) {
	level := parseLevel(levelStr)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Debug("logger initialized", "level", level.String())
}
