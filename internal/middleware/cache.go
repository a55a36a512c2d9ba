package middleware

import "github.com/gin-gonic/gin"

// NoStore tells browsers, proxies and CDNs never to cache the response.
// Schedule positions are only valid for the instant they were computed.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate, max-age=0")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("Surrogate-Control", "no-store")
		c.Next()
	}
}
