package security

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// AccessLogMiddleware logs each HTTP request with method, path, status, and duration.
// Paths listed in skipPaths are silently passed through without logging.
func AccessLogMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"clientIP", c.ClientIP(),
		}
		if email := GetEmail(c); email != "" {
			fields = append(fields, "caller", email)
		}
		log.Info("HTTP request", fields...)
	}
}

// AdminAuditMiddleware logs admin API calls with the caller identity. When
// requireJustification is true, admin requests must include a justification
// via query param (?justification=...) or X-Justification header.
func AdminAuditMiddleware(requireJustification bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/v1/admin") {
			c.Next()
			return
		}
		justification := c.Query("justification")
		if justification == "" {
			justification = c.GetHeader("X-Justification")
		}
		if requireJustification && justification == "" {
			c.AbortWithStatusJSON(400, gin.H{"error": "justification is required"})
			return
		}

		c.Next()

		log.Info("Admin audit",
			"caller", GetEmail(c),
			"admin", IsAdmin(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"justification", justification,
		)
	}
}
