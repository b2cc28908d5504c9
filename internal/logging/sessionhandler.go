package logging

import (
	"context"
	"log/slog"
	"maps"
)

// SessionAttrs describes the open recording, if any.
type SessionAttrs interface {
	LogAttrs() []slog.Attr
}

// SessionHandler stamps every record with the attributes of the open
// recording, read at the time the record is handled. An attribute whose key
// the record or logger already carries is skipped.
type SessionHandler struct {
	inner   slog.Handler
	session SessionAttrs
	// top level keys added through WithAttrs
	bound   map[string]bool
	grouped bool
}

// NewSessionHandler wraps inner. A nil session makes it a pass-through.
func NewSessionHandler(inner slog.Handler, session SessionAttrs) *SessionHandler {
	return &SessionHandler{inner: inner, session: session, bound: map[string]bool{}}
}

func (h *SessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *SessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.session == nil {
		return h.inner.Handle(ctx, r)
	}
	attrs := h.session.LogAttrs()
	if len(attrs) == 0 {
		return h.inner.Handle(ctx, r)
	}

	present := maps.Clone(h.bound)
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})
	r = r.Clone()
	for _, a := range attrs {
		if !present[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *SessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := maps.Clone(h.bound)
	if !h.grouped {
		for _, a := range attrs {
			bound[a.Key] = true
		}
	}
	return &SessionHandler{inner: h.inner.WithAttrs(attrs), session: h.session, bound: bound, grouped: h.grouped}
}

// WithGroup nests later attributes, session ones included, under name.
func (h *SessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SessionHandler{inner: h.inner.WithGroup(name), session: h.session, bound: map[string]bool{}, grouped: true}
}
