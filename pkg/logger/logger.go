package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the service logger. Production gets JSON records, every other
// environment gets the text handler. Records carry the environment and the
// process name.
func New(lvl string, addSource bool, environment, procName string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(lvl),
		AddSource: addSource,
	}
	var handler slog.Handler

	if strings.ToLower(environment) == "production" || strings.ToLower(environment) == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	log := slog.New(handler)
	if environment != "" {
		log = log.With(slog.String("environment", environment))
	}
	if procName != "" {
		log = log.With(slog.String("proc", procName))
	}

	return log
}

// ParseLevel maps both Go and Python style level names onto slog levels.
// Unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Open resolves a log destination: "-" is the given fallback stream,
// anything else is a file opened for appending.
func Open(dest string, fallback io.Writer) (io.WriteCloser, error) {
	if dest == "" || dest == "-" {
		return nopCloser{fallback}, nil
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", dest, err)
	}

	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
