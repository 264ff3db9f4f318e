package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	AgentTxAgent = "txagent"
	AgentOpenAI  = "openai"

	ChatModel = "mims-harvard/TxAgent-T1-Llama-3.1-8B"

	systemPrompt = "You are a careful medical information assistant. Answer from the " +
		"provided context when possible, cite which document a statement came from, " +
		"and say clearly when the context does not cover the question. Never invent " +
		"dosages or diagnoses."
)

// upstreamClient talks to an OpenAI-compatible chat completions endpoint.
// When unconfigured the service falls back to the local composer.
type upstreamClient struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

func newUpstreamClient(baseURL, apiKey, model string) *upstreamClient {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &upstreamClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

type upstreamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type upstreamRequest struct {
	Model       string            `json:"model"`
	Messages    []upstreamMessage `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
}

type upstreamResponse struct {
	Choices []struct {
		Message upstreamMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *upstreamClient) complete(ctx context.Context, messages []upstreamMessage, temperature float64) (string, int, error) {
	body, err := json.Marshal(upstreamRequest{Model: c.model, Messages: messages, Temperature: temperature})
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read upstream response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	var parsed upstreamResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", 0, fmt.Errorf("decode upstream response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("upstream returned no choices")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}

// Chat answers a query using the retrieved sources the gateway attached.
// With an upstream configured the sources become context in the prompt;
// without one a deterministic local composer summarizes them.
func (s *Service) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	start := time.Now()
	temperature := 0.7
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	response := ChatResponse{
		Sources: req.Sources,
		Model:   ChatModel,
		Status:  "success",
	}

	if s.upstream != nil {
		messages := buildMessages(req)
		text, tokens, err := s.upstream.complete(ctx, messages, temperature)
		if err == nil {
			response.Response = text
			response.TokensUsed = tokens
			response.Model = s.upstream.model
			response.ProcessingTime = time.Since(start).Seconds()
			return response
		}
		s.log.Warn("upstream chat failed, using local composer", "error", err)
	}

	text := composeLocalAnswer(req)
	response.Response = text
	response.TokensUsed = len(strings.Fields(text))
	response.ProcessingTime = time.Since(start).Seconds()
	return response
}

func buildMessages(req ChatRequest) []upstreamMessage {
	messages := []upstreamMessage{{Role: "system", Content: systemPrompt}}
	if len(req.Sources) > 0 {
		var b strings.Builder
		b.WriteString("Context from the user's documents:\n")
		for i, src := range req.Sources {
			fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, src.Filename, src.Content)
		}
		messages = append(messages, upstreamMessage{Role: "system", Content: b.String()})
	}
	for _, m := range req.History {
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, upstreamMessage{Role: role, Content: m.Content})
	}
	return append(messages, upstreamMessage{Role: "user", Content: req.Query})
}

// composeLocalAnswer builds a grounded reply without any model: quote the
// strongest matching passages and be explicit when nothing matched.
func composeLocalAnswer(req ChatRequest) string {
	if len(req.Sources) == 0 {
		return "I could not find anything in your uploaded documents about this. " +
			"Try uploading relevant material, or rephrase the question with more specific terms."
	}
	var b strings.Builder
	b.WriteString("Based on your documents:\n\n")
	for i, src := range req.Sources {
		snippet := src.Content
		if len(snippet) > 400 {
			snippet = snippet[:400] + "..."
		}
		fmt.Fprintf(&b, "%d. From %s: %s\n\n", i+1, src.Filename, snippet)
	}
	b.WriteString("This is retrieved reference material, not a diagnosis.")
	return b.String()
}
