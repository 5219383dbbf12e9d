// Package logging builds the *log.Logger values handed to each component.
//
// Every component takes an optional logger and falls back to stderr with
// its own bracketed prefix. The daemon instead routes all components into
// one sink, optionally a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where daemon logs go.
type Config struct {
	// File is the log file path. Empty means stderr.
	File string

	// MaxSizeMB is the size at which the file is rotated (default: 10).
	MaxSizeMB int

	// MaxBackups is how many rotated files are kept (default: 3).
	MaxBackups int

	// MaxAgeDays removes rotated files older than this (default: 28).
	MaxAgeDays int

	// Verbose enables Debugf output.
	Verbose bool
}

// Sink is the shared destination for component loggers.
type Sink struct {
	out    io.Writer
	closer io.Closer
}

var verbose atomic.Bool

// Open creates the sink described by cfg and applies its verbose switch.
func Open(cfg Config) (*Sink, error) {
	SetVerbose(cfg.Verbose || os.Getenv("SPELLSYNC_DEBUG") != "")

	if cfg.File == "" {
		return &Sink{out: os.Stderr}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   true,
	}
	return &Sink{out: lj, closer: lj}, nil
}

// NewSink wraps an arbitrary writer.
func NewSink(w io.Writer) *Sink {
	return &Sink{out: w}
}

// Logger returns a logger for component, prefixed "[component] ".
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.out, "["+component+"] ", log.LstdFlags)
}

// Writer exposes the underlying destination.
func (s *Sink) Writer() io.Writer {
	return s.out
}

// Close flushes and closes a file sink. Stderr is left open.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SetVerbose toggles Debugf.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Verbose reports whether Debugf prints.
func Verbose() bool {
	return verbose.Load()
}

// Debugf logs to l only in verbose mode.
func Debugf(l *log.Logger, format string, args ...any) {
	if !verbose.Load() || l == nil {
		return
	}
	l.Printf("DEBUG: "+format, args...)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
