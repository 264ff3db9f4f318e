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
	voiceTextLimit    = 5000
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoiceModel = "eleven_monolingual_v1"

	// voiceUnconfiguredMsg is the exact message the SPA matches on.
	voiceUnconfiguredMsg = "Voice generation service is not configured"
)

// mockVoices is served when no TTS provider is wired up, so the SPA's
// voice picker still works in local development.
var mockVoices = []Voice{
	{ID: "default", Name: "Default", Description: "Neutral narration voice"},
	{ID: "professional", Name: "Professional", Description: "Formal clinical tone"},
	{ID: "calm", Name: "Calm", Description: "Slow, reassuring delivery"},
}

type voiceClient struct {
	apiKey  string
	voiceID string
	baseURL string
	httpc   *http.Client
}

func newVoiceClient(apiKey, voiceID string) *voiceClient {
	if apiKey == "" {
		return nil
	}
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM"
	}
	return &voiceClient{
		apiKey:  apiKey,
		voiceID: voiceID,
		baseURL: elevenLabsBaseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// synthesize returns MP3 audio for the text.
func (c *voiceClient) synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if voiceID == "" {
		voiceID = c.voiceID
	}
	body, err := json.Marshal(ttsRequest{Text: text, ModelID: defaultVoiceModel})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts provider status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func (c *voiceClient) listVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voices provider status %d", resp.StatusCode)
	}

	var parsed struct {
		Voices []struct {
			VoiceID  string `json:"voice_id"`
			Name     string `json:"name"`
			Category string `json:"category"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	voices := make([]Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		voices = append(voices, Voice{ID: v.VoiceID, Name: v.Name, Description: v.Category})
	}
	return voices, nil
}

// estimateDuration is the rough seconds-of-speech heuristic the mock mode
// reports: ten characters per second.
func estimateDuration(text string) float64 {
	return float64(len(strings.TrimSpace(text))) / 10
}
