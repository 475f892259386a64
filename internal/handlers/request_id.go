package handlers

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/observability"
)

const requestIDContextKey = "request_id"

// RequestID stamps every request with an id and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.RequestIDFromRequest(c.Request)
		c.Set(requestIDContextKey, requestID)
		c.Header(observability.RequestIDHeader, requestID)
		c.Next()
	}
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}
	return c.GetHeader(observability.RequestIDHeader)
}

func traceIDFromContext(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func eventHeaders(c *gin.Context) map[string]string {
	return observability.BuildHeaders(requestIDFromContext(c), traceIDFromContext(c))
}
