package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type slogKeyT struct{}

var slogKey slogKeyT

type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(slogKey).([]slog.Attr)
	if !ok || a == nil {
		a = make([]slog.Attr, 0, len(attrs))
	}
	a = append(a[:len(a):len(a)], attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// ParseLevel maps debug, info, warn and error to slog levels, anything else
// falls back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Config struct {
	Level   string
	Verbose bool   // forces debug
	Dir     string // when set, logs are also written to a file in Dir
	Stderr  io.Writer
}

// FileName returns the name of the log file for a run started at t.
func FileName(t time.Time) string {
	return t.Format("igor-06-01-02-15-04-05.log")
}

// New returns a JSON logger writing to stderr and, if cfg.Dir is set, to a
// rotated log file. The returned closer releases the file.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if cfg.Stderr != nil {
		w = cfg.Stderr
	}

	var closer io.Closer = nopCloser{}
	if cfg.Dir != "" {
		info, err := os.Stat(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("log dir: %w", err)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("log dir %s: not a directory", cfg.Dir)
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, FileName(time.Now())),
			MaxSize:    100, // megabytes
			MaxBackups: 5,
		}
		w = io.MultiWriter(w, file)
		closer = file
	}

	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	return slog.New(NewContextHandler(base)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
