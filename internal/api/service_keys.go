package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/utils"
)

type createServiceKeyRequest struct {
	Name string `json:"name"`
}

// CreateServiceKey issues a new key for non-browser automation. The
// plaintext is returned exactly once; only the bcrypt hash and the lookup
// prefix are stored.
func CreateServiceKey(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)

	var req createServiceKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": "name is required"})
		return
	}

	key, prefix, err := utils.GenerateServiceKey()
	if err != nil {
		logger().Error("generate service key failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create key"})
		return
	}
	hash, err := utils.HashServiceKey(key)
	if err != nil {
		logger().Error("hash service key failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create key"})
		return
	}

	id := uuid.New()
	now := time.Now()
	_, err = database.DB.ExecContext(c.Request.Context(),
		`INSERT INTO service_keys (id, user_id, name, key_prefix, key_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, principal.ID, strings.TrimSpace(req.Name), prefix, hash, now)
	if err != nil {
		logger().Error("insert service key failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         id,
		"name":       strings.TrimSpace(req.Name),
		"key":        key, // shown once, never retrievable again
		"key_prefix": prefix,
		"created_at": now,
	})
}

// ListServiceKeys returns the caller's keys without hashes.
func ListServiceKeys(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)
	keys := []database.ServiceKey{}
	err := database.DB.SelectContext(c.Request.Context(), &keys,
		`SELECT id, user_id, name, key_prefix, key_hash, created_at, last_used_at, revoked_at
		 FROM service_keys WHERE user_id=$1 ORDER BY created_at DESC`, principal.ID)
	if err != nil {
		logger().Error("list service keys failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list keys"})
		return
	}
	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		out = append(out, gin.H{
			"id":           k.ID,
			"name":         k.Name,
			"key_prefix":   k.KeyPrefix,
			"created_at":   k.CreatedAt,
			"last_used_at": k.LastUsedAt,
			"revoked_at":   k.RevokedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"keys": out})
}

// RevokeServiceKey stamps revoked_at; the auth path skips revoked keys so
// the credential dies immediately.
func RevokeServiceKey(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	res, err := database.DB.ExecContext(c.Request.Context(),
		`UPDATE service_keys SET revoked_at=$1 WHERE id=$2 AND user_id=$3 AND revoked_at IS NULL`,
		time.Now(), id, principal.ID)
	if err != nil {
		logger().Error("revoke service key failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not revoke key"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": id.String()})
}
