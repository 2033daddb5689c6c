package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autocare/internal/models"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocare_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autocare_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	authEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocare_auth_events_total",
		Help: "Session-change events published, by event type.",
	}, []string{"event"})

	diagnostics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autocare_diagnostics_total",
		Help: "Diagnostic requests by input kind and resulting status.",
	}, []string{"kind", "status"})
)

// Middleware records request counts and latency. Unmatched routes are
// grouped under "unmatched" to keep label cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func AuthEvent(event models.AuthEventType) {
	authEvents.WithLabelValues(string(event)).Inc()
}

func Diagnostic(kind string, status models.DiagnosticStatus) {
	diagnostics.WithLabelValues(kind, string(status)).Inc()
}
