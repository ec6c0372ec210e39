package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore keeps intermediaries from caching API responses. Exam papers and
// scores must never be served from a shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
