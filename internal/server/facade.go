package server

import (
	"net/http"
	"strings"

	"evalgate/internal/eval"
)

// EvalFacade is the small unauthenticated HTTP surface for scoring answers
// directly, without an agent or a stored run. It exists for callers that
// already have a question/answer pair in hand.
type EvalFacade struct {
	service string
	version string
}

func NewEvalFacade(service, version string) *EvalFacade {
	if strings.TrimSpace(service) == "" {
		service = "evalgate"
	}
	if strings.TrimSpace(version) == "" {
		version = "dev"
	}
	return &EvalFacade{service: service, version: version}
}

func (f *EvalFacade) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", f.handleHealth)
	mux.HandleFunc("POST /eval/answer", f.handleEvalAnswer)
	mux.HandleFunc("POST /eval/batch", f.handleEvalBatch)
	return withCORS(mux)
}

func (f *EvalFacade) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": f.service,
		"version": f.version,
	})
}

type answerRequest struct {
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Context        []string `json:"context,omitempty"`
	ExpectedAnswer string   `json:"expected_answer,omitempty"`
}

func (f *EvalFacade) handleEvalAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "question and answer are required")
		return
	}
	writeJSON(w, http.StatusOK, eval.EvaluateAnswer(req.Question, req.Answer, req.Context))
}

func (f *EvalFacade) handleEvalBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []answerRequest `json:"items"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	results := make([]eval.QAEvaluation, 0, len(req.Items))
	for _, item := range req.Items {
		results = append(results, eval.EvaluateAnswer(item.Question, item.Answer, item.Context))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
