// Package logging carries editor correlation ids through contexts and
// injects them into slog records.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	workflowTypeKey
	definitionIDKey
)

// correlation lists the context keys with the attribute names they log as,
// in output order.
var correlation = []struct {
	key  ctxKey
	attr string
}{
	{sessionIDKey, "session_id"},
	{workflowTypeKey, "workflow_type"},
	{definitionIDKey, "definition_id"},
}

// WithSessionID returns a context carrying the editor session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithWorkflowType returns a context carrying the workflow type being edited.
func WithWorkflowType(ctx context.Context, workflowType string) context.Context {
	return context.WithValue(ctx, workflowTypeKey, workflowType)
}

// WithDefinitionID returns a context carrying the definition id.
func WithDefinitionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, definitionIDKey, id)
}

// SessionID extracts the session id, or "" if absent.
func SessionID(ctx context.Context) string { return get(ctx, sessionIDKey) }

// WorkflowType extracts the workflow type, or "" if absent.
func WorkflowType(ctx context.Context) string { return get(ctx, workflowTypeKey) }

// DefinitionID extracts the definition id, or "" if absent.
func DefinitionID(ctx context.Context) string { return get(ctx, definitionIDKey) }

func get(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// WithIDs sets every correlation id at once. Empty values are skipped.
func WithIDs(ctx context.Context, sessionID, workflowType, definitionID string) context.Context {
	for _, kv := range []struct {
		key ctxKey
		val string
	}{
		{sessionIDKey, sessionID},
		{workflowTypeKey, workflowType},
		{definitionIDKey, definitionID},
	} {
		if kv.val != "" {
			ctx = context.WithValue(ctx, kv.key, kv.val)
		}
	}
	return ctx
}

func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, c := range correlation {
		if v := get(ctx, c.key); v != "" {
			out = append(out, slog.String(c.attr, v))
		}
	}
	return out
}

// LogWith returns logger enriched with the context's non-empty ids.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and adds the context's
// correlation ids to every record, so logger.InfoContext(ctx, ...) is
// enough at call sites.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps debug, info, warn and error to slog levels. Empty is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a text logger on w at level, wrapped in a CorrelationHandler.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewCorrelationHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
