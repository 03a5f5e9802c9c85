package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/courselens-backend/internal/observability"
)

// unmatchedRoute labels requests that hit no registered route, keeping label
// cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics instruments HTTP request counts/latency when metrics are enabled.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.APIInflightInc()
		defer m.APIInflightDec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.ObserveAPI(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
