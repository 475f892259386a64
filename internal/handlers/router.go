package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/observability"
)

// NewRouter builds the local control API.
func NewRouter(h *ControlHandler, serviceName string, debug bool) *gin.Engine {
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(RequestID())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/chatrooms", h.ListChatrooms)
	router.POST("/chatrooms", h.CreateChatroom)
	router.POST("/chatrooms/:chatroom_id/activate", h.ActivateChatroom)
	router.GET("/messages", h.ListMessages)
	router.POST("/messages", h.PostMessage)
	router.POST("/messages/:message_id/retry", h.RetryMessage)
	router.GET("/status", h.Status)
	router.GET("/identity", h.GetIdentity)
	router.PUT("/identity", h.RenameIdentity)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterDebugRoutes(router, debug)
	return router
}
