package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestScoreSingleTurnChat(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("posted to %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "{\"score\": 4, \"reason\": \"Mostly accurate\"}"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "test-model"})
	verdict, err := client.Score(context.Background(), "rate this answer")
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	if gotReq.Stream {
		t.Fatal("streaming requested")
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if temp, _ := gotReq.Options["temperature"].(float64); temp != 0.1 {
		t.Fatalf("temperature = %v", gotReq.Options["temperature"])
	}
	if verdict.Score != 4 || verdict.Normalized != 0.8 {
		t.Fatalf("verdict = %+v", verdict)
	}
}

func TestScoreTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if _, err := client.Score(context.Background(), "prompt"); err == nil {
		t.Fatal("5xx did not error")
	}

	server.Close()
	if _, err := client.Score(context.Background(), "prompt"); err == nil {
		t.Fatal("unreachable judge did not error")
	}
}

func TestNewClientClampsTemperature(t *testing.T) {
	served := make(chan float64, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		temp, _ := req.Options["temperature"].(float64)
		served <- temp
		_, _ = w.Write([]byte(`{"message": {"content": "{\"score\": 5, \"reason\": \"ok\"}"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Temperature: 0.9})
	if _, err := client.Score(context.Background(), "prompt"); err != nil {
		t.Fatalf("score: %v", err)
	}
	if temp := <-served; temp != 0.1 {
		t.Fatalf("temperature = %v, want clamp to 0.1", temp)
	}
}
