// Package logger carries slog attributes through contexts so sync workers
// can tag every record with the property and run they belong to.
package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const attrKey contextKey = "attrKey"

// ContextHandler is a [slog.Handler] that appends any attributes stashed in
// the context via [Ctx] onto each record before delegating.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler wraps a base handler.
func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{Handler: handler}
}

// Handle implements [slog.Handler].
func (h ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs, ok := ctx.Value(attrKey).([]slog.Attr)
	if !ok {
		return h.Handler.Handle(ctx, record)
	}

	record.AddAttrs(attrs...)
	return h.Handler.Handle(ctx, record)
}

// Ctx returns a context carrying the given attributes. Every record logged
// with that context through a [ContextHandler] picks them up.
func Ctx(ctx context.Context, toAppend ...slog.Attr) context.Context {
	attrs, ok := ctx.Value(attrKey).([]slog.Attr)
	if !ok {
		attrs = []slog.Attr{}
	}

	attrs = append(attrs, toAppend...)
	return context.WithValue(ctx, attrKey, attrs)
}
