package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AgentStatus returns the monitor's latest snapshot. The SPA polls this on
// a 30-second interval; the path is exempt from request logging and rate
// limiting so the poll stays free.
func AgentStatus(c *gin.Context) {
	if deps.Monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent monitor not running"})
		return
	}
	c.JSON(http.StatusOK, deps.Monitor.Status())
}

// RefreshAgentStatus forces an immediate out-of-band poll. This backs the
// UI's retry button after the snapshot goes disconnected.
func RefreshAgentStatus(c *gin.Context) {
	if deps.Monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent monitor not running"})
		return
	}
	c.JSON(http.StatusOK, deps.Monitor.Refresh(c.Request.Context()))
}
