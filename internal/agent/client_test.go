package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatPostsAndDecodes(t *testing.T) {
	var gotPath string
	var gotReq ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"response": "Paris is the capital of France.",
			"tool_calls": [{"name": "search", "input": {"q": "capital of france"}}],
			"provider": "groq",
			"usage": {"input_tokens": 42, "output_tokens": 12}
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	resp, err := client.Chat(context.Background(), ChatRequest{
		Message:   "What is the capital of France?",
		SessionID: "eval-t1",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if gotPath != "/api/chat" {
		t.Fatalf("posted to %s", gotPath)
	}
	if gotReq.SessionID != "eval-t1" {
		t.Fatalf("session id = %q", gotReq.SessionID)
	}
	if resp.Response != "Paris is the capital of France." {
		t.Fatalf("response = %q", resp.Response)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "search" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 42 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestChatSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi", SessionID: "s"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := IsAPIError(err)
	if !ok {
		t.Fatalf("not an api error: %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Message != "rate limited" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestToolNamesDeduplicates(t *testing.T) {
	resp := ChatResponse{ToolCalls: []ToolCall{
		{Name: "search"}, {Name: "calc"}, {Name: "search"},
	}}
	names := resp.ToolNames()
	if len(names) != 2 {
		t.Fatalf("names = %v", names)
	}
}
