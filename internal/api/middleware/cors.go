package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, Accept, Origin, X-Requested-With"
)

// CORSConfig holds the cross-origin policy.
type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

// allows reports whether the policy admits the origin.
func (cfg CORSConfig) allows(origin string) bool {
	if cfg.AllowAllOrigins {
		return true
	}
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// CORS sets cross-origin headers per the configured policy and answers
// preflight requests. Requests from origins outside the policy pass
// through without CORS headers and the browser enforces the denial.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case cfg.AllowAllOrigins:
			// Wildcard origins cannot carry credentials.
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && cfg.allows(origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		default:
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
