package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is stamped on responses via VersionMiddleware and reported by
// the OpenAPI document.
const Version = "2025-08-01"

var pkgLog = slog.Default()

// SetLogger installs the process logger for the api package.
func SetLogger(l *slog.Logger) {
	if l != nil {
		pkgLog = l
	}
}

func logger() *slog.Logger { return pkgLog }

// quietPaths are high-frequency probes whose request logs would be pure
// noise: health checks and the SPA's 30-second status poll.
var quietPaths = map[string]struct{}{
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
	"/api/agent/status": {},
}

// RequestLogMiddleware emits a start and an end event per request with
// method, path, status, duration and the best-effort caller identity.
// The Authorization header value itself is never logged.
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, quiet := quietPaths[path]; quiet {
			c.Next()
			return
		}

		start := time.Now()
		logger().Info("request started",
			"method", c.Request.Method,
			"path", path,
			"request_id", c.GetString("requestID"),
		)

		c.Next()

		caller := "anonymous"
		if p, ok := CurrentPrincipal(c); ok {
			caller = p.ID.String()
		}
		logger().Info("request completed",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"caller", caller,
			"request_id", c.GetString("requestID"),
		)
	}
}
