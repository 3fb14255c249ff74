// Package logger configures the process-wide structured logger. It
// mirrors kadirpekel/hector's pkg/logger: a slog.Logger built once,
// with a filtering handler that hides third-party noise unless the
// level is debug.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

const modulePrefix = "github.com/clenoble/sovereign"

var (
	once    sync.Once
	current *slog.Logger
)

// ParseLevel converts a level string to slog.Level. Unknown strings
// default to warn rather than erroring, matching the teacher's
// conservative default.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Init configures the process-wide logger exactly once; subsequent calls
// are no-ops so repeated Init from tests or hot-reload paths is safe.
func Init(w io.Writer, level slog.Level) *slog.Logger {
	once.Do(func() {
		if w == nil {
			w = os.Stderr
		}
		base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
		current = slog.New(&filteringHandler{handler: base, minLevel: level})
		slog.SetDefault(current)
	})
	return current
}

// Get returns the process logger, initialising it with sane defaults if
// Init was never called (e.g. in a test binary).
func Get() *slog.Logger {
	if current == nil {
		return Init(os.Stderr, slog.LevelInfo)
	}
	return current
}

// filteringHandler suppresses logs originating outside this module
// unless the configured level is debug or lower.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return true
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return strings.HasPrefix(frame.Function, modulePrefix)
}
