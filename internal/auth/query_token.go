package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// QueryTokenMiddleware copies a token passed as a query parameter into the
// Authorization header. Browsers cannot set headers on a websocket handshake.
func QueryTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			token := firstNonEmpty(c.Query("Authorization"), c.Query("authorization"), c.Query("token"))
			if token != "" {
				if _, ok := bearerToken(token); !ok {
					token = "Bearer " + token
				}
				c.Request.Header.Set("Authorization", token)
			}
		}
		c.Next()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
