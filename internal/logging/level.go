package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel parses a log level string into slog.Level.
// Supported values: DEBUG, INFO, WARN, WARNING, ERROR (case-insensitive).
// Returns INFO for unknown values and prints a warning to stderr.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "", "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "Warning: Unknown log level '%s', using INFO\n", level)
		return slog.LevelInfo
	}
}

// LevelString returns a human-readable string for the log level.
func LevelString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", level)
	}
}

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses a format name, case-insensitive. Unknown values fall back
// to FormatText.
func ParseFormat(format string) Format {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}
