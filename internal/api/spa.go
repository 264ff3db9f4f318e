package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// MountSPA serves the built frontend from dist when it exists, with the
// index.html fallback the client-side router needs for /login, /chat,
// /documents and /monitor. Returns false when no build is present, which
// is the normal state for API-only deployments.
func MountSPA(r *gin.Engine, dist string) bool {
	if dist == "" {
		dist = filepath.Join("web", "dist")
	}
	index := filepath.Join(dist, "index.html")
	if info, err := os.Stat(index); err != nil || info.IsDir() {
		return false
	}

	if info, err := os.Stat(filepath.Join(dist, "assets")); err == nil && info.IsDir() {
		r.Static("/assets", filepath.Join(dist, "assets"))
	}
	r.StaticFile("/", index)
	r.StaticFile("/favicon.ico", filepath.Join(dist, "favicon.ico"))

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") || c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		// serve real files directly, everything else falls back to the SPA
		candidate := filepath.Join(dist, filepath.Clean("/"+path))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			c.File(candidate)
			return
		}
		c.File(index)
	})
	return true
}
