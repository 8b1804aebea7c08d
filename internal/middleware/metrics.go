package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/envault/envault/pkg/metrics"
)

// Metrics observes each request's latency, labelled by method, route and
// final status. Requests that match no route are recorded under their raw
// URL path.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		defer func() {
			route := c.FullPath()
			if route == "" {
				route = c.Request.URL.Path
			}
			metrics.APILatency.
				WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
				Observe(time.Since(start).Seconds())
		}()

		c.Next()
	}
}
