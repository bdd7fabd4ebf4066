// Package logging builds the slog logger shared by the CLI and the client.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options describes where and how to log.
type Options struct {
	Level  string
	Format string

	// File switches output from Writer to a size-rotated file.
	File string

	// Writer receives log lines when File is empty. Defaults to os.Stderr.
	Writer io.Writer
}

// Rotation limits for File output.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger configured by opts and a closer that releases the log
// file, if one was opened. The closer is never nil.
func New(opts Options) (*slog.Logger, io.Closer) {
	var (
		out    io.Writer = opts.Writer
		closer io.Closer = nopCloser{}
	)
	if out == nil {
		out = os.Stderr
	}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		out, closer = rotating, rotating
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	switch ParseFormat(opts.Format) {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler), closer
}
