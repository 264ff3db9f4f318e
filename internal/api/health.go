package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	database "github.com/arvik-health/medgate/internal"
)

// Healthz is the liveness probe: the process is up.
func Healthz(c *gin.Context) {
	c.Status(http.StatusOK)
}

// Readyz checks the dependencies a request actually needs: the database,
// and Redis when the job queue runs through it. Each check gets a 300ms
// budget so a wedged dependency fails the probe instead of hanging it.
func Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
	defer cancel()
	if err := database.DB.DB.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "database unreachable"})
		return
	}

	if queueEnabled() {
		rctx, rcancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
		defer rcancel()
		if err := queueRedis.Ping(rctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "redis unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
