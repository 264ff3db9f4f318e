// Package agentclient is the gateway's HTTP client for the agent service:
// signed requests, a retry on transient failures, a circuit breaker, and a
// Redis-backed embedding cache in front of /api/embed.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arvik-health/medgate/internal/agent"
	"github.com/arvik-health/medgate/internal/cache"
	"github.com/arvik-health/medgate/internal/utils"
)

// ErrUnavailable is returned when the agent cannot be reached, including
// while the breaker is open. Handlers map it to 503.
var ErrUnavailable = errors.New("agent unavailable")

type Client struct {
	baseURL string
	secret  string
	httpc   *http.Client
	breaker *CircuitBreaker
	embeds  *cache.EmbedCache
	log     *slog.Logger
	obs     func(op string, dur time.Duration, success bool)
}

func New(baseURL, secret string, embeds *cache.EmbedCache, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpc:   &http.Client{Timeout: 90 * time.Second},
		breaker: newBreaker(),
		embeds:  embeds,
		log:     log,
	}
}

// SetObserver registers a callback invoked after every agent call with the
// operation name, elapsed time and outcome. Skipped calls (breaker open) do
// not reach the observer.
func (c *Client) SetObserver(f func(op string, dur time.Duration, success bool)) { c.obs = f }

func (c *Client) observed(op string, start time.Time, err error) {
	if c.obs != nil {
		c.obs(op, time.Since(start), err == nil)
	}
}

// Health polls the agent's health endpoint. It bypasses the breaker on
// purpose: the monitor needs to observe recovery while calls are tripped.
func (c *Client) Health(ctx context.Context) (out agent.HealthResponse, elapsed time.Duration, err error) {
	start := time.Now()
	defer func() { c.observed("health", start, err) }()
	status, body, err := c.send(ctx, http.MethodGet, "/health", nil)
	elapsed = time.Since(start)
	if err != nil {
		return out, elapsed, err
	}
	if status != http.StatusOK {
		return out, elapsed, fmt.Errorf("agent health status %d", status)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, elapsed, fmt.Errorf("decode health: %w", err)
	}
	return out, elapsed, nil
}

// Embed returns the embedding for text, consulting the cache first.
func (c *Client) Embed(ctx context.Context, text string, normalize bool) ([]float32, error) {
	if normalize {
		if vec, ok := c.embeds.Get(ctx, text); ok {
			return vec, nil
		}
	}
	var out agent.EmbedResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/embed",
		agent.EmbedRequest{Text: text, Normalize: &normalize}, &out)
	if err != nil {
		return nil, err
	}
	if normalize {
		c.embeds.Put(ctx, text, out.Embedding, out.Model)
	}
	return out.Embedding, nil
}

func (c *Client) Chat(ctx context.Context, req agent.ChatRequest) (agent.ChatResponse, error) {
	var out agent.ChatResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/chat", req, &out)
	return out, err
}

func (c *Client) Consult(ctx context.Context, req agent.ConsultationRequest) (agent.ConsultationResponse, error) {
	var out agent.ConsultationResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/medical-consultation", req, &out)
	return out, err
}

// GenerateVoice forwards the synthesis request and hands back the raw
// status, content type and body so the gateway can relay audio, mock JSON
// and provider errors untouched.
func (c *Client) GenerateVoice(ctx context.Context, req agent.VoiceRequest) (status int, contentType string, body []byte, err error) {
	if !c.breaker.Allow() {
		return 0, "", nil, ErrUnavailable
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, "", nil, err
	}
	start := time.Now()
	defer func() { c.observed("generate-voice", start, err) }()
	status, body, contentType, err = c.sendWithType(ctx, http.MethodPost, "/api/generate-voice", payload)
	if err != nil {
		c.breaker.ReportFailure()
		return 0, "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.breaker.ReportSuccess()
	return status, contentType, body, nil
}

func (c *Client) Voices(ctx context.Context) (raw json.RawMessage, err error) {
	if !c.breaker.Allow() {
		return nil, ErrUnavailable
	}
	start := time.Now()
	defer func() { c.observed("voices", start, err) }()
	status, body, err := c.send(ctx, http.MethodGet, "/api/voices", nil)
	if err != nil {
		c.breaker.ReportFailure()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.breaker.ReportSuccess()
	if status != http.StatusOK {
		return nil, fmt.Errorf("agent voices status %d", status)
	}
	return body, nil
}

// doJSON runs a breaker-guarded request with one retry on transport errors
// and 5xx responses, then decodes into out.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) (err error) {
	if !c.breaker.Allow() {
		return ErrUnavailable
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	start := time.Now()
	defer func() { c.observed(strings.TrimPrefix(path, "/api/"), start, err) }()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(250 * time.Millisecond << attempt):
			case <-ctx.Done():
				c.breaker.ReportFailure()
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}
		status, respBody, err := c.send(ctx, method, path, body)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 500 {
			lastErr = fmt.Errorf("agent status %d", status)
			continue
		}
		if status != http.StatusOK {
			// 4xx means the request itself is wrong; retrying won't help
			// and the agent is up, so don't trip the breaker.
			c.breaker.ReportSuccess()
			return fmt.Errorf("agent rejected request: status %d: %s", status, truncate(respBody, 200))
		}
		c.breaker.ReportSuccess()
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode agent response: %w", err)
			}
		}
		return nil
	}
	c.breaker.ReportFailure()
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	status, respBody, _, err := c.sendWithType(ctx, method, path, body)
	return status, respBody, err
}

func (c *Client) sendWithType(ctx context.Context, method, path string, body []byte) (int, []byte, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Agent-Signature",
			utils.BuildSignatureHeader(c.secret, time.Now().Unix(), body))
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return 0, nil, "", err
	}
	return resp.StatusCode, respBody, resp.Header.Get("Content-Type"), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
