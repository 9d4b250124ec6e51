package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type key string

// TraceIDKey is the context key under which the request trace id is stored.
const TraceIDKey key = "trace_id"

// WithTraceID returns a context carrying the given trace id.
func WithTraceID(ctx context.Context, traceId string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceId)
}

// GetTraceID returns the trace id stored in the context, or a fresh one
// if the context does not carry any.
func GetTraceID(ctx context.Context) string {
	traceId, ok := ctx.Value(TraceIDKey).(string)
	if !ok || traceId == "" {
		return uuid.NewString()
	}
	return traceId
}

// GetTraceIdOfRequest fetches the trace id set by the logging middleware
// on the request context.
func GetTraceIdOfRequest(c *gin.Context) string {
	return GetTraceID(c.Request.Context())
}
