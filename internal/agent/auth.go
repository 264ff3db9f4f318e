package agent

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arvik-health/medgate/internal/utils"
)

const signatureTolerance = 5 * time.Minute

// requireSignature verifies the gateway's signed-request header. With no
// secret configured (local development) requests pass through.
func (s *Service) requireSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.hmacSecret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("X-Agent-Signature")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		ts, sig, err := utils.ParseSignatureHeader(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		if d := time.Since(time.Unix(ts, 0)); d > signatureTolerance || d < -signatureTolerance {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "stale signature"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !utils.VerifyServiceSignature(s.hmacSecret, ts, body, sig) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
