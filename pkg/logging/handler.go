package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Sink receives formatted log lines at a syslog severity. SyslogClient
// and FileLog both satisfy it.
type Sink interface {
	ShouldSend(severity int) bool
	Send(severity int, msg string) error
	Close() error
}

// sinkSet is shared between a TeeHandler and all handlers derived from
// it, so SetSinks reaches records logged through WithAttrs children.
type sinkSet struct {
	mu    sync.RWMutex
	sinks []Sink
}

// TeeHandler is an slog.Handler that forwards records to a set of
// sinks in addition to a wrapped base handler (typically stderr).
type TeeHandler struct {
	base   slog.Handler
	set    *sinkSet
	attrs  []slog.Attr
	groups []string
}

// NewTeeHandler wraps a base slog.Handler with sink forwarding.
func NewTeeHandler(base slog.Handler) *TeeHandler {
	return &TeeHandler{base: base, set: &sinkSet{}}
}

// SetSinks replaces the sink set. Old sinks are closed.
func (h *TeeHandler) SetSinks(sinks []Sink) {
	h.set.mu.Lock()
	old := h.set.sinks
	h.set.sinks = sinks
	h.set.mu.Unlock()

	for _, s := range old {
		s.Close()
	}
}

// Close closes all sinks.
func (h *TeeHandler) Close() {
	h.SetSinks(nil)
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.base.Handle(ctx, r)

	h.set.mu.RLock()
	sinks := h.set.sinks
	h.set.mu.RUnlock()

	if len(sinks) > 0 {
		severity := slogLevelToSyslog(r.Level)
		msg := formatRecord(r, h.attrs, h.groups)
		for _, s := range sinks {
			if s.ShouldSend(severity) {
				s.Send(severity, msg)
			}
		}
	}

	return err
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TeeHandler{
		base:   h.base.WithAttrs(attrs),
		set:    h.set,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{
		base:   h.base.WithGroup(name),
		set:    h.set,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

// slogLevelToSyslog maps slog levels to syslog severity values.
func slogLevelToSyslog(level slog.Level) int {
	switch {
	case level >= slog.LevelError:
		return SyslogError
	case level >= slog.LevelWarn:
		return SyslogWarning
	default:
		return SyslogInfo
	}
}

// formatRecord produces a compact text representation of a log record.
func formatRecord(r slog.Record, preAttrs []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range preAttrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		fmt.Fprintf(&b, " %s=%s", key, a.Value.String())
		return true
	})

	return b.String()
}
