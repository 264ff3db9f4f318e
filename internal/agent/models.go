package agent

import "encoding/json"

// Wire types for the agent service API. Field names are part of the
// contract with the gateway and the SPA; changing them breaks both.

type EmbedRequest struct {
	Text      string `json:"text"`
	Normalize *bool  `json:"normalize,omitempty"`
}

type EmbedResponse struct {
	Embedding      []float32 `json:"embedding"`
	Dimensions     int       `json:"dimensions"`
	Model          string    `json:"model"`
	ProcessingTime float64   `json:"processing_time"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatSource struct {
	DocumentID string  `json:"document_id,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity,omitempty"`
}

type ChatRequest struct {
	Query       string        `json:"query"`
	History     []ChatMessage `json:"history,omitempty"`
	Sources     []ChatSource  `json:"sources,omitempty"`
	TopK        int           `json:"top_k,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type ChatResponse struct {
	Response       string       `json:"response"`
	Sources        []ChatSource `json:"sources"`
	ProcessingTime float64      `json:"processing_time"`
	Model          string       `json:"model"`
	TokensUsed     int          `json:"tokens_used"`
	Status         string       `json:"status"`
}

type UserProfile struct {
	Role       string          `json:"role,omitempty"`
	Age        int             `json:"age,omitempty"`
	Conditions []string        `json:"conditions,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

type ConsultationContext struct {
	UserProfile         *UserProfile  `json:"user_profile,omitempty"`
	ConversationHistory []ChatMessage `json:"conversation_history,omitempty"`
}

type ConsultationRequest struct {
	Query          string               `json:"query"`
	Context        *ConsultationContext `json:"context,omitempty"`
	SessionID      string               `json:"session_id,omitempty"`
	PreferredAgent string               `json:"preferred_agent,omitempty"`
}

type ConsultationAnswer struct {
	Text            string       `json:"text"`
	Sources         []ChatSource `json:"sources"`
	ConfidenceScore float64      `json:"confidence_score"`
}

type ConsultationSafety struct {
	EmergencyDetected     bool   `json:"emergency_detected"`
	Disclaimer            string `json:"disclaimer"`
	UrgentCareRecommended bool   `json:"urgent_care_recommended"`
}

type ConsultationRecommendations struct {
	SuggestedAction   string   `json:"suggested_action"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

type ConsultationResponse struct {
	Response         ConsultationAnswer          `json:"response"`
	Safety           ConsultationSafety          `json:"safety"`
	Recommendations  ConsultationRecommendations `json:"recommendations"`
	ProcessingTimeMs int64                       `json:"processing_time_ms"`
	SessionID        string                      `json:"session_id"`
	AgentID          string                      `json:"agent_id"`
}

type VoiceRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

type VoiceMockResponse struct {
	AudioURL         string  `json:"audio_url"`
	DurationEstimate float64 `json:"duration_estimate"`
	VoiceID          string  `json:"voice_id"`
}

type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type HealthResponse struct {
	Status        string  `json:"status"`
	ModelLoaded   bool    `json:"model_loaded"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	MemoryMB      float64 `json:"memory_mb"`
	Timestamp     string  `json:"timestamp"`
}
