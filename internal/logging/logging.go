// Package logging wires log/slog the way the daemon needs it: a JSON handler
// to a file plus a fan-out into the dashboard's live log broadcaster, so
// GET /ws/logs is just another slog sink rather than a second logging path.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Sink receives a single rendered log line. The dashboard's broadcaster
// implements this to fan slog records out to WebSocket subscribers and the
// 500-line ring buffer (see internal/dashboard).
type Sink interface {
	Publish(line string)
}

// Setup installs the default slog logger: JSON output to file (if path is
// non-empty) or stderr, at the given level, additionally tee'd to sink if
// non-nil. Mirrors the slog bootstrap goclaw performs at daemon start.
func Setup(level string, file string, sink Sink) (*slog.Logger, func() error, error) {
	var out io.Writer = os.Stderr
	closer := func() error { return nil }

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closer = f.Close
	}

	lvl := parseLevel(level)
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})

	var h slog.Handler = handler
	if sink != nil {
		h = &teeHandler{inner: handler, sink: sink, level: lvl}
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, closer, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// teeHandler renders each record to a plain line for the dashboard sink in
// addition to delegating to the JSON handler, so log file format and
// dashboard display format can evolve independently.
type teeHandler struct {
	inner slog.Handler
	sink  Sink
	level slog.Level
	mu    sync.Mutex
	attrs []slog.Attr
	group string
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.inner.Enabled(ctx, level)
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.String())
		return true
	})
	t.mu.Lock()
	t.sink.Publish(b.String())
	t.mu.Unlock()
	return t.inner.Handle(ctx, r)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{inner: t.inner.WithAttrs(attrs), sink: t.sink, level: t.level}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{inner: t.inner.WithGroup(name), sink: t.sink, level: t.level}
}
