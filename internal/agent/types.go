package agent

import (
	"encoding/json"
	"fmt"
)

type ChatRequest struct {
	Message        string         `json:"message"`
	SessionID      string         `json:"session_id"`
	ConfigOverride map[string]any `json:"config_override,omitempty"`
}

type ToolCall struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ChatResponse struct {
	Response  string     `json:"response"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Blocked   bool       `json:"blocked,omitempty"`
	Provider  string     `json:"provider,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// ToolNames returns the distinct tool names invoked in this response.
func (r *ChatResponse) ToolNames() []string {
	if r == nil || len(r.ToolCalls) == 0 {
		return nil
	}
	seen := map[string]bool{}
	names := make([]string, 0, len(r.ToolCalls))
	for _, call := range r.ToolCalls {
		if call.Name == "" || seen[call.Name] {
			continue
		}
		seen[call.Name] = true
		names = append(names, call.Name)
	}
	return names
}

type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("agent status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("agent status %d: %s", e.StatusCode, string(e.Body))
}

func parseErrorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}
	var message string
	if json.Unmarshal(envelope.Error, &message) == nil {
		return message
	}
	var detail struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(envelope.Error, &detail) == nil {
		return detail.Message
	}
	return ""
}
