package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// ContextWithSession stores a diagnosis session id for context-bound loggers.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionFromContext returns the session id stored by ContextWithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// extractContextFields returns trace_id and span_id of the active span and
// the session id, or nil when ctx carries none of them.
func extractContextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	fields := make(map[string]interface{})
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	if id, ok := SessionFromContext(ctx); ok {
		fields["session_id"] = id
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}
