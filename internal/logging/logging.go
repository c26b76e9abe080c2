// Package logging holds the process logger. Loggers handed out by L and For
// follow later calls to Configure, so components may keep the logger they
// were built with.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level string
	JSON  bool
	// Output defaults to stderr; stdout is reserved for sink output.
	Output io.Writer
}

var (
	active atomic.Pointer[slog.Handler]
	root   = slog.New(&handler{})
)

func init() { Configure(Options{}) }

// Configure replaces the output of every logger obtained from this package.
func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler = slog.NewTextHandler(out, ho)
	if opts.JSON {
		h = slog.NewJSONHandler(out, ho)
	}
	active.Store(&h)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func L() *slog.Logger { return root }

// For returns the process logger tagged with a component name.
func For(component string) *slog.Logger {
	return root.With("component", component)
}

// InitFromEnv reads FRAMEPUMP_LOG_LEVEL and FRAMEPUMP_LOG_JSON.
func InitFromEnv() {
	json, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("FRAMEPUMP_LOG_JSON")))
	Configure(Options{Level: os.Getenv("FRAMEPUMP_LOG_LEVEL"), JSON: json})
}

// handler replays its attrs and groups onto whichever handler is active
// when a record is written.
type handler struct {
	ops []op
}

type op struct {
	group string
	attrs []slog.Attr
}

func (h *handler) resolve() slog.Handler {
	cur := *active.Load()
	for _, o := range h.ops {
		if o.group != "" {
			cur = cur.WithGroup(o.group)
		} else {
			cur = cur.WithAttrs(o.attrs)
		}
	}
	return cur
}

func (h *handler) Enabled(ctx context.Context, l slog.Level) bool {
	return (*active.Load()).Enabled(ctx, l)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &handler{ops: append(slices.Clip(h.ops), op{attrs: slices.Clone(attrs)})}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &handler{ops: append(slices.Clip(h.ops), op{group: name})}
}
