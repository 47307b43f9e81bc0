package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET,POST,PUT,OPTIONS"
	corsHeaders = "Authorization,Content-Type,Last-Event-ID"
	corsMaxAge  = "86400"
)

type corsPolicy struct {
	origins  map[string]struct{}
	wildcard bool
}

func newCORSPolicy(origins []string) corsPolicy {
	p := corsPolicy{origins: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			p.wildcard = true
		default:
			p.origins[origin] = struct{}{}
		}
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func (p corsPolicy) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if p.wildcard {
		return "*"
	}
	if _, ok := p.origins[origin]; ok {
		return origin
	}
	return ""
}

// CORS answers preflight requests and echoes allowed origins. "*" allows any
// origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := newCORSPolicy(allowedOrigins)

	return func(c *gin.Context) {
		header := c.Writer.Header()
		if allow := policy.allowOrigin(c.GetHeader("Origin")); allow != "" {
			header.Set("Access-Control-Allow-Origin", allow)
			if allow != "*" {
				header.Add("Vary", "Origin")
			}
		}
		header.Set("Access-Control-Allow-Methods", corsMethods)
		header.Set("Access-Control-Allow-Headers", corsHeaders)
		header.Set("Access-Control-Max-Age", corsMaxAge)

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
