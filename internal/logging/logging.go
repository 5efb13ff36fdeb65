// Package logging builds the process logger: human-readable text on the
// console and JSON lines in a daily log file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options configures New.
type Options struct {
	// Console receives text records. Nil disables console output, which the
	// TUI uses so records do not draw over the screen.
	Console      io.Writer
	ConsoleLevel slog.Level

	// FileEnabled writes JSON records to {Dir}/{Prefix}_{YYYYMMDD}.log.
	FileEnabled bool
	Dir         string
	Prefix      string
	FileLevel   slog.Level

	// Now picks the file date. Defaults to time.Now.
	Now func() time.Time
}

// ParseLevel maps debug, info, warn/warning and error to a slog level.
// Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// FileName returns the log file name for prefix on day t.
func FileName(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = "app"
	}
	return fmt.Sprintf("%s_%s.log", prefix, t.Format("20060102"))
}

// New returns a logger writing to the configured sinks and a cleanup func
// that closes the log file. With no sinks the logger discards everything.
func New(opts Options) (*slog.Logger, func(), error) {
	var handlers fanoutHandler
	cleanup := func() {}

	if opts.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Console, &slog.HandlerOptions{Level: opts.ConsoleLevel}))
	}

	if opts.FileEnabled {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		path := filepath.Join(opts.Dir, FileName(opts.Prefix, now()))
		file, err := openLogFile(path)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: opts.FileLevel}))
		cleanup = func() { _ = file.Close() }
	}

	if len(handlers) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), cleanup, nil
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), cleanup, nil
	}
	return slog.New(handlers), cleanup, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// fanoutHandler sends each record to every sub-handler enabled for its
// level.
type fanoutHandler []slog.Handler

func (handlers fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (handlers fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for i, handler := range handlers {
		derived[i] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for i, handler := range handlers {
		derived[i] = handler.WithGroup(name)
	}
	return derived
}
