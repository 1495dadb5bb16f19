package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/auditseal/internal/metrics"
)

// PrometheusMiddleware records request duration and count per route pattern.
// Server errors are also counted in auditseal_errors_total.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if path == "/metrics" {
			return
		}

		status := c.Writer.Status()
		code := strconv.Itoa(status)
		metrics.RequestDuration.WithLabelValues(c.Request.Method, path, code).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, path, code).Inc()

		if status >= 500 {
			metrics.ErrorsTotal.WithLabelValues("http_5xx").Inc()
		}
	}
}
