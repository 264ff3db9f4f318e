package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/agent"
)

type startSessionRequest struct {
	Agent string `json:"agent"`
}

// StartSession opens an agent session for the caller. Refused while the
// monitor reports the agent cannot start, and while the caller already has
// an active session.
func StartSession(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)

	var req startSessionRequest
	_ = c.ShouldBindJSON(&req) // empty body means the default agent
	switch req.Agent {
	case "":
		req.Agent = agent.AgentTxAgent
	case agent.AgentTxAgent, agent.AgentOpenAI:
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": "agent must be txagent or openai"})
		return
	}

	if deps.Monitor != nil && !deps.Monitor.Status().CanStart {
		c.JSON(http.StatusConflict, gin.H{"error": "agent is not available to start a session"})
		return
	}

	var active int
	err := database.DB.GetContext(c.Request.Context(), &active,
		`SELECT COUNT(*) FROM agent_sessions WHERE user_id=$1 AND status='active'`, principal.ID)
	if err != nil {
		logger().Error("count active sessions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
		return
	}
	if active > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "an active session already exists"})
		return
	}

	id := uuid.New()
	now := time.Now()
	_, err = database.DB.ExecContext(c.Request.Context(),
		`INSERT INTO agent_sessions (id, user_id, agent, status, started_at)
		 VALUES ($1, $2, $3, 'active', $4)`, id, principal.ID, req.Agent, now)
	if err != nil {
		logger().Error("insert session failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         id,
		"agent":      req.Agent,
		"status":     "active",
		"started_at": now,
	})
}

// EndSession closes a session. Ending an already-ended session is a no-op
// that still answers 200, so the SPA can retry teardown safely.
func EndSession(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	_, err = database.DB.ExecContext(c.Request.Context(),
		`UPDATE agent_sessions SET status='ended', ended_at=$1 WHERE id=$2 AND user_id=$3 AND status='active'`,
		time.Now(), id, principal.ID)
	if err != nil {
		logger().Error("end session failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not end session"})
		return
	}

	var sess database.AgentSession
	err = database.DB.GetContext(c.Request.Context(), &sess,
		`SELECT id, user_id, agent, status, started_at, ended_at FROM agent_sessions WHERE id=$1 AND user_id=$2`,
		id, principal.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         sess.ID,
		"agent":      sess.Agent,
		"status":     sess.Status,
		"started_at": sess.StartedAt,
		"ended_at":   sess.EndedAt,
	})
}

// ListSessions returns the caller's sessions, newest first.
func ListSessions(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)
	sessions := []database.AgentSession{}
	err := database.DB.SelectContext(c.Request.Context(), &sessions,
		`SELECT id, user_id, agent, status, started_at, ended_at
		 FROM agent_sessions WHERE user_id=$1 ORDER BY started_at DESC`, principal.ID)
	if err != nil {
		logger().Error("list sessions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list sessions"})
		return
	}
	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"id":         s.ID,
			"agent":      s.Agent,
			"status":     s.Status,
			"started_at": s.StartedAt,
			"ended_at":   s.EndedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}
