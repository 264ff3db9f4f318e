// Package agent implements the model runtime facade: embeddings, RAG chat,
// medical consultations and voice synthesis behind a small HTTP API. The
// gateway is its only intended caller.
package agent

import (
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "1.4.0"

type Service struct {
	log        *slog.Logger
	upstream   *upstreamClient
	voice      *voiceClient
	voiceMock  bool
	hmacSecret string
	started    time.Time
}

// NewServiceFromEnv wires the service from the environment: optional
// OpenAI-compatible upstream, optional ElevenLabs voice provider, and the
// shared HMAC secret for gateway calls.
func NewServiceFromEnv(log *slog.Logger) *Service {
	return &Service{
		log:        log,
		upstream:   newUpstreamClient(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_KEY"), os.Getenv("CHAT_MODEL")),
		voice:      newVoiceClient(os.Getenv("ELEVENLABS_API_KEY"), os.Getenv("ELEVENLABS_VOICE_ID")),
		voiceMock:  os.Getenv("MEDGATE_VOICE_MOCK") == "1",
		hmacSecret: os.Getenv("AGENT_HMAC_SECRET"),
		started:    time.Now(),
	}
}

// Router builds the gin engine. CORS stays wide open here; the service is
// internal and the gateway enforces the browser-facing policy. extra
// middleware (tracing) runs before the service's own.
func (s *Service) Router(extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(extra...)
	r.Use(s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization", "X-Agent-Signature"},
	}))

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", s.requireSignature())
	api.POST("/embed", s.handleEmbed)
	api.POST("/chat", s.handleChat)
	api.POST("/medical-consultation", s.handleConsultation)
	api.POST("/generate-voice", s.handleVoice)
	api.GET("/voices", s.handleVoices)
	return r
}

// requestLogger emits start/end events for every call except the health
// and metrics probes, which would otherwise drown the log.
func (s *Service) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		s.log.Info("request started", "method", c.Request.Method, "path", path)
		c.Next()
		s.log.Info("request completed",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func validationError(c *gin.Context, detail string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "detail": detail})
}

func (s *Service) processingError(c *gin.Context, op string, err error) {
	s.log.Error("processing error", "op", op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (s *Service) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "medgate-agent",
		"version": Version,
		"status":  "running",
		"endpoints": []string{
			"/health",
			"/api/embed",
			"/api/chat",
			"/api/medical-consultation",
			"/api/generate-voice",
			"/api/voices",
		},
	})
}

func (s *Service) handleHealth(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		ModelLoaded:   true,
		UptimeSeconds: time.Since(s.started).Seconds(),
		MemoryMB:      float64(mem.Alloc) / (1 << 20),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) handleEmbed(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		validationError(c, "text is required")
		return
	}
	normalize := true
	if req.Normalize != nil {
		normalize = *req.Normalize
	}

	start := time.Now()
	embedding := Embed(req.Text, normalize)
	c.JSON(http.StatusOK, EmbedResponse{
		Embedding:      embedding,
		Dimensions:     Dimensions,
		Model:          EmbedModel,
		ProcessingTime: time.Since(start).Seconds(),
	})
}

func (s *Service) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		validationError(c, "query is required")
		return
	}
	c.JSON(http.StatusOK, s.Chat(c.Request.Context(), req))
}

func (s *Service) handleConsultation(c *gin.Context) {
	var req ConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		validationError(c, "query is required")
		return
	}
	switch req.PreferredAgent {
	case "", AgentTxAgent, AgentOpenAI:
	default:
		validationError(c, "preferred_agent must be txagent or openai")
		return
	}

	start := time.Now()
	chatReq := ChatRequest{Query: req.Query}
	if req.Context != nil {
		chatReq.History = req.Context.ConversationHistory
	}
	answer := s.Chat(c.Request.Context(), chatReq)

	resp := s.Consult(req, answer)
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	c.JSON(http.StatusOK, resp)
}

func (s *Service) handleVoice(c *gin.Context) {
	var req VoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		validationError(c, "text is required")
		return
	}
	if len(text) > voiceTextLimit {
		validationError(c, "text exceeds the 5000 character limit")
		return
	}

	if s.voiceMock {
		c.JSON(http.StatusOK, VoiceMockResponse{
			AudioURL:         "/mock-audio/" + mockVoiceID(req.VoiceID) + ".mp3",
			DurationEstimate: estimateDuration(text),
			VoiceID:          mockVoiceID(req.VoiceID),
		})
		return
	}
	if s.voice == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": voiceUnconfiguredMsg})
		return
	}

	audio, err := s.voice.synthesize(c.Request.Context(), text, req.VoiceID)
	if err != nil {
		s.processingError(c, "generate-voice", err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func mockVoiceID(requested string) string {
	for _, v := range mockVoices {
		if v.ID == requested {
			return requested
		}
	}
	return "default"
}

func (s *Service) handleVoices(c *gin.Context) {
	if s.voice == nil || s.voiceMock {
		c.JSON(http.StatusOK, gin.H{"voices": mockVoices})
		return
	}
	voices, err := s.voice.listVoices(c.Request.Context())
	if err != nil {
		s.processingError(c, "voices", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices})
}
