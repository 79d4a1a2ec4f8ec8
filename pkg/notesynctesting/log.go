package notesynctesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/notesync/notesync/pkg/logger"
)

// LogRecorder is a slog.Handler that keeps every record in memory so tests
// can assert on what was logged. Lines have the form
//
//	LEVEL: message key=value, key=value
//
// without timestamps. It is safe for concurrent use; handlers derived with
// WithAttrs and WithGroup share the same buffer.
type LogRecorder struct {
	shared *recorded
	attrs  []slog.Attr
	groups []string
}

type recorded struct {
	mu    sync.Mutex
	lines []string
	t     testing.TB
}

// NewLogRecorder returns an empty recorder. When t is non-nil every line is
// also written with t.Log.
func NewLogRecorder(t testing.TB) *LogRecorder {
	return &LogRecorder{shared: &recorded{t: t}}
}

// Logger returns a logger.Logger writing to r.
func (r *LogRecorder) Logger() *logger.SlogHandler {
	return logger.New(r)
}

func (r *LogRecorder) Enabled(context.Context, slog.Level) bool {
	return true
}

//nolint:gocritic
func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", rec.Level, rec.Message)

	prefix := ""
	if len(r.groups) > 0 {
		prefix = strings.Join(r.groups, ".") + "."
	}
	sep := " "
	write := func(key string, v slog.Value) {
		sb.WriteString(sep)
		sep = ", "
		fmt.Fprintf(&sb, "%s=%v", key, v)
	}
	for _, a := range r.attrs {
		write(a.Key, a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		write(prefix+a.Key, a.Value)
		return true
	})

	line := sb.String()
	r.shared.mu.Lock()
	r.shared.lines = append(r.shared.lines, line)
	t := r.shared.t
	r.shared.mu.Unlock()
	if t != nil {
		t.Log(line)
	}
	return nil
}

func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(r.groups) > 0 {
		prefix = strings.Join(r.groups, ".") + "."
	}
	next := make([]slog.Attr, 0, len(r.attrs)+len(attrs))
	next = append(next, r.attrs...)
	for _, a := range attrs {
		next = append(next, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &LogRecorder{shared: r.shared, attrs: next, groups: r.groups}
}

func (r *LogRecorder) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	return &LogRecorder{
		shared: r.shared,
		attrs:  r.attrs,
		groups: append(r.groups[:len(r.groups):len(r.groups)], name),
	}
}

// Lines returns a copy of everything logged so far.
func (r *LogRecorder) Lines() []string {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	return append([]string(nil), r.shared.lines...)
}

// Contains reports whether any line at level contains substr.
func (r *LogRecorder) Contains(level slog.Level, substr string) bool {
	want := level.String() + ": "
	for _, line := range r.Lines() {
		if strings.HasPrefix(line, want) && strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
