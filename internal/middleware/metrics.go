package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/simulcast/internal/metrics"
)

// Metrics counts requests per matched route and error responses
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.IncRequests(route)
		if c.Writer.Status() >= 400 {
			m.IncErrors()
		}
	}
}
