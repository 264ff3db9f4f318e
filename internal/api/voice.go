package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arvik-health/medgate/internal/agent"
)

// GenerateVoice relays synthesis to the agent untouched, so audio bytes,
// mock JSON, validation errors and the unconfigured-provider 503 all
// reach the SPA exactly as the agent produced them.
func GenerateVoice(c *gin.Context) {
	var req agent.VoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": "invalid request body"})
		return
	}

	status, contentType, body, err := deps.Agents.GenerateVoice(c.Request.Context(), req)
	if err != nil {
		agentUnavailable(c, "generate-voice", err)
		return
	}
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(status, contentType, body)
}

// ListVoices proxies the agent's voice catalogue.
func ListVoices(c *gin.Context) {
	raw, err := deps.Agents.Voices(c.Request.Context())
	if err != nil {
		agentUnavailable(c, "voices", err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
