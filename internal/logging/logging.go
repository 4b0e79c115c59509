// Package logging provides structured logging setup shared by all commands.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Level is a log level parsed from configuration.
type Level slog.Level

const (
	// LevelDebug enables per-entity diagnostics.
	LevelDebug Level = Level(slog.LevelDebug)
	// LevelInfo is the default level.
	LevelInfo Level = Level(slog.LevelInfo)
	// LevelWarn limits output to warnings and errors.
	LevelWarn Level = Level(slog.LevelWarn)
	// LevelError limits output to errors.
	LevelError Level = Level(slog.LevelError)
)

// ParseLevel converts a textual log level into a Level value. Unknown
// values fall back to info.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// NewLogger constructs a logger writing to w. Format json selects plain
// JSON lines, anything else a colorized text handler.
func NewLogger(w io.Writer, level Level, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.Level(level)})
	} else {
		handler = tint.NewHandler(w, &tint.Options{Level: slog.Level(level)})
	}

	return slog.New(handler)
}
