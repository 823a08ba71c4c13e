// Package logging builds the process logger: human-readable text on stderr,
// plus an optional rotating JSON log file.
package logging

import (
	"io"
	"log/slog"

	"github.com/natefinch/lumberjack"
)

// Options selects the stderr level and the optional JSON log file.
type Options struct {
	Stderr  io.Writer
	Verbose bool
	Quiet   bool

	// File enables the JSON log when non-empty. It always logs at debug.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Level returns the stderr level: warn when quiet, debug when verbose,
// info otherwise. Verbose wins over quiet.
func (o Options) Level() slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from opts. The returned closer flushes and closes the
// log file; it is a no-op when no file was requested.
func New(opts Options) (*slog.Logger, io.Closer) {
	text := slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: opts.Level()})
	if opts.File == "" {
		return slog.New(text), nopCloser{}
	}

	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	jsonH := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewMultiHandler(text, jsonH)), lj
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
