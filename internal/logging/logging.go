// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LoggerError is fatal during startup only.
type LoggerError struct {
	Reason string
}

func (e *LoggerError) Error() string {
	return "logger error: " + e.Reason
}

// New returns a logger writing to path, or to stderr when path is empty.
// The log directory is created if missing; rotation is left to external
// tooling.
func New(path string) (*slog.Logger, error) {
	var w io.Writer = os.Stderr
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &LoggerError{Reason: fmt.Sprintf("can't create log directory for %s: %v", path, err)}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, &LoggerError{Reason: fmt.Sprintf("can't open log file %s: %v", path, err)}
		}
		w = f
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})), nil
}
