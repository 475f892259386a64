package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_api_requests_total",
			Help: "Total number of requests sent to the chat backend.",
		},
		[]string{"method", "route", "status"},
	)
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_client_api_request_duration_seconds",
			Help:    "Chat backend request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	controlRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_control_requests_total",
			Help: "Total number of requests handled by the local control API.",
		},
		[]string{"method", "route", "status"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_ws_active_connections",
			Help: "Number of open realtime connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_ws_events_total",
			Help: "Total number of realtime events.",
		},
		[]string{"event"},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_messages_total",
			Help: "Messages handled by the reconciliation engine by outcome.",
		},
		[]string{"outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		controlRequestsTotal,
		wsActiveConnections,
		wsEventsTotal,
		messagesTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records every control API request.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		controlRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// ObserveAPIRequest records one backend call. Status 0 means the request never
// got a response.
func ObserveAPIRequest(method, route string, status int, started time.Time) {
	apiRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncMessage(outcome string) {
	messagesTotal.WithLabelValues(outcome).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
