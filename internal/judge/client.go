package judge

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

type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Verdict is one judge scoring of an answer. Score is the raw 1-5 rubric
// value; Normalized is Score/5. A reply the parser cannot make sense of
// yields a zero-score verdict, never an error.
type Verdict struct {
	Score      float64 `json:"score"`
	Normalized float64 `json:"normalized"`
	Reason     string  `json:"reason"`
}

// Client sends rubric prompts to an Ollama-compatible chat endpoint and
// extracts structured verdicts from the free-text replies.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "qwen2.5:3b"
	}
	temperature := cfg.Temperature
	if temperature <= 0 || temperature > 0.1 {
		// Low temperature keeps repeated scoring runs close together.
		temperature = 0.1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Score sends one rubric prompt as a single-turn chat request. Transport
// failures are returned as errors for the caller to degrade; malformed
// judge output is absorbed by ExtractVerdict and never surfaces as an error.
func (c *Client) Score(ctx context.Context, prompt string) (Verdict, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal judge request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("build judge request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return Verdict{}, fmt.Errorf("read judge response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Verdict{}, fmt.Errorf("judge status %d: %s", response.StatusCode, firstN(string(body), 200))
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Verdict{}, fmt.Errorf("decode judge response: %w", err)
	}
	return ExtractVerdict(resp.Message.Content), nil
}

func firstN(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
