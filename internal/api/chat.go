package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/agent"
	"github.com/arvik-health/medgate/internal/agentclient"
)

const (
	matchThreshold = 0.5
	defaultTopK    = 5
	maxTopK        = 20
)

// Chat embeds the query, retrieves the caller's best-matching chunks and
// forwards everything to the agent. Retrieval failing softly (no Redis,
// no matches) still produces an answer; the agent being down does not.
func Chat(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)

	var req agent.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": "query is required"})
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	ctx := c.Request.Context()
	embedding, err := deps.Agents.Embed(ctx, req.Query, true)
	if err != nil {
		agentUnavailable(c, "embed query", err)
		return
	}

	matches, err := database.MatchChunks(ctx, principal.ID, embedding, matchThreshold, topK)
	if err != nil {
		logger().Error("chunk retrieval failed", "error", err)
		matches = nil
	}
	req.Sources = make([]agent.ChatSource, 0, len(matches))
	for _, m := range matches {
		req.Sources = append(req.Sources, agent.ChatSource{
			DocumentID: m.DocumentID.String(),
			Filename:   m.Filename,
			Content:    m.Content,
			Similarity: m.Similarity,
		})
	}
	req.TopK = topK

	resp, err := deps.Agents.Chat(ctx, req)
	if err != nil {
		agentUnavailable(c, "chat", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// agentUnavailable maps agent transport failures to the UI-safe 503; the
// specific cause only goes to the log.
func agentUnavailable(c *gin.Context, op string, err error) {
	if errors.Is(err, agentclient.ErrUnavailable) {
		logger().Warn("agent unavailable", "op", op, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent unavailable"})
		return
	}
	logger().Error("agent call failed", "op", op, "error", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "agent request failed"})
}
