package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-client/internal/observability"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/events-test", func(c *gin.Context) {
		event := observability.EventEnvelope{
			EventType:  "debug",
			EventName:  "events.test",
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
			Payload:    gin.H{"request_id": requestIDFromContext(c)},
		}
		if err := observability.PublishEvent(c.Request.Context(), "client_events.debug", event, eventHeaders(c)); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
