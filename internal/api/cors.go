package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// AllowedOriginsFromEnv reads the comma-separated MEDGATE_CORS_ORIGINS
// list, falling back to the local SPA dev servers.
func AllowedOriginsFromEnv() []string {
	raw := os.Getenv("MEDGATE_CORS_ORIGINS")
	if raw == "" {
		return defaultAllowedOrigins
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	if len(origins) == 0 {
		return defaultAllowedOrigins
	}
	return origins
}

// CORSMiddleware applies the browser origin policy:
//
//   - an Origin on the allow-list is echoed back;
//   - no Origin at all gets the wildcard (curl, server-to-server);
//   - an unknown Origin gets NO allow-origin header. The request still
//     runs; the browser is the one that refuses the response.
//
// Preflights are answered 200 with an empty body regardless of origin.
func CORSMiddleware(allowed []string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allowedSet[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		switch {
		case origin == "":
			h.Set("Access-Control-Allow-Origin", "*")
		default:
			if _, ok := allowedSet[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-Request-ID, Idempotency-Key")
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
