package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string

	// File enables a rotating log file next to stdout.
	File          string
	MaxSizeMB     int
	MaxBackups    int
	MaxAgeDays    int
	Stdout        io.Writer
	DisableStdout bool
}

// New builds a JSON slog logger. The returned closer flushes the rotating
// file, if any; it is never nil.
func New(opts Options) (*slog.Logger, io.Closer) {
	var writers []io.Writer
	if !opts.DisableStdout {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		writers = append(writers, out)
	}

	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(opts.File); file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, rotating)
		closer = rotating
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})), closer
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Discard is the logger components fall back to when none is injected.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
