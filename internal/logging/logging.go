// Package logging builds the prefixed loggers used across deckhand.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a stderr logger with the given subsystem prefix, e.g.
// "[sync] ".
func New(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// FileOptions configures rotating file output for long-running modes.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFile returns a logger that writes to both stderr and a rotating
// file. The returned closer flushes the file sink; callers should close
// it on shutdown.
func NewFile(prefix string, opts FileOptions) (*log.Logger, io.Closer) {
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	w := io.MultiWriter(os.Stderr, rotator)
	return log.New(w, prefix, log.LstdFlags), rotator
}
