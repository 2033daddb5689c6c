package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "apikey"

// APIKey requires the project key on every request. An empty key disables
// the check.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		got := c.GetHeader(apiKeyHeader)
		if got == "" {
			got = c.Query(apiKeyHeader)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			AbortJSON(c, http.StatusUnauthorized, "invalid_api_key", "missing or invalid api key")
			return
		}

		c.Next()
	}
}
