package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/agent"
)

// MedicalConsultation forwards the structured consultation request and
// persists an audit row with the safety outcome.
func MedicalConsultation(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)

	var req agent.ConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": "query is required"})
		return
	}
	switch req.PreferredAgent {
	case "", agent.AgentTxAgent, agent.AgentOpenAI:
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": "preferred_agent must be txagent or openai"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	start := time.Now()
	resp, err := deps.Agents.Consult(c.Request.Context(), req)
	if err != nil {
		agentUnavailable(c, "medical-consultation", err)
		return
	}

	row := database.Consultation{
		UserID:            principal.ID,
		AgentID:           resp.AgentID,
		EmergencyDetected: resp.Safety.EmergencyDetected,
		LatencyMs:         time.Since(start).Milliseconds(),
	}
	if parsed, err := uuid.Parse(resp.SessionID); err == nil {
		row.SessionID = &parsed
	}
	_, err = database.DB.NamedExecContext(c.Request.Context(),
		`INSERT INTO consultations (user_id, session_id, agent_id, emergency_detected, latency_ms)
		 VALUES (:user_id, :session_id, :agent_id, :emergency_detected, :latency_ms)`, row)
	if err != nil {
		logger().Error("record consultation failed", "error", err)
	}

	c.JSON(http.StatusOK, resp)
}
