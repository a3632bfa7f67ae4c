// Package logging builds the process logger: JSON to a rotated file when a
// log directory is configured, human-readable text on stderr otherwise.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Dir is the log directory; empty means log to stderr as text.
	Dir   string
	Level string // "debug", "info" (default), "warn", "error"

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New returns the logger and a close function for the rotated file writer.
func New(cfg Config) (*slog.Logger, func() error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 14
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Dir == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() error { return nil }
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "tgfleet.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return slog.New(slog.NewJSONHandler(writer, opts)), writer.Close
}

// Discard is a logger for tests that do not assert on log output.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
