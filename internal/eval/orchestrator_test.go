package eval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"evalgate/internal/agent"
	"evalgate/internal/judge"
)

type stubAgent struct {
	mu       sync.Mutex
	calls    int
	sessions []string
	respond  func(req agent.ChatRequest) (*agent.ChatResponse, error)
}

func (s *stubAgent) Chat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
	s.mu.Lock()
	s.calls++
	s.sessions = append(s.sessions, req.SessionID)
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(req)
	}
	return &agent.ChatResponse{Response: "echo: " + req.Message}, nil
}

type stubJudge struct {
	verdict judge.Verdict
	err     error
}

func (s *stubJudge) Score(ctx context.Context, prompt string) (judge.Verdict, error) {
	if s.err != nil {
		return judge.Verdict{}, s.err
	}
	return s.verdict, nil
}

func makeCases(n int) []TestCase {
	cases := make([]TestCase, n)
	for i := range cases {
		cases[i] = TestCase{
			ID:       fmt.Sprintf("case-%03d", i),
			Category: "general",
			Question: fmt.Sprintf("question %d", i),
			MinScore: 0.7,
			EvalType: EvalTypeQuality,
		}
	}
	return cases
}

func TestRunProducesOneResultPerCase(t *testing.T) {
	o := NewOrchestrator(&stubAgent{}, &stubJudge{verdict: judge.Verdict{Score: 4, Normalized: 0.8}})
	cases := makeCases(17)
	run := o.Run(context.Background(), cases, Options{Concurrency: 5, MaxRetries: 0})

	if len(run.Results) != len(cases) {
		t.Fatalf("got %d results for %d cases", len(run.Results), len(cases))
	}
	for i, result := range run.Results {
		if result.TestID != cases[i].ID {
			t.Fatalf("result %d is %s, want %s", i, result.TestID, cases[i].ID)
		}
		if !result.Passed {
			t.Fatalf("case %s failed with score %v", result.TestID, result.OverallScore)
		}
	}
	if run.Passed != 17 || run.Failed != 0 {
		t.Fatalf("counters = %d/%d", run.Passed, run.Failed)
	}
}

func TestRunAgentFailureYieldsErrorResult(t *testing.T) {
	failing := &stubAgent{respond: func(req agent.ChatRequest) (*agent.ChatResponse, error) {
		if req.Message == "question 1" {
			return nil, errors.New("connection refused")
		}
		return &agent.ChatResponse{Response: "fine"}, nil
	}}
	o := NewOrchestrator(failing, &stubJudge{verdict: judge.Verdict{Score: 5, Normalized: 1}})
	run := o.Run(context.Background(), makeCases(3), Options{MaxRetries: 0})

	if len(run.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(run.Results))
	}
	broken := run.Results[1]
	if broken.Passed {
		t.Fatal("failed case marked passed")
	}
	if broken.Error == "" {
		t.Fatal("failed case has no error")
	}
	if !strings.HasPrefix(broken.Output, "[AGENT ERROR]") {
		t.Fatalf("failed case output = %q", broken.Output)
	}
	if broken.Judge == nil || broken.Judge.Score != 0 {
		t.Fatalf("failed case judge = %+v", broken.Judge)
	}
	if broken.OverallScore != 0 {
		t.Fatalf("failed case score = %v", broken.OverallScore)
	}
	if run.Passed != 2 || run.Failed != 1 {
		t.Fatalf("counters = %d/%d", run.Passed, run.Failed)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	attempts := 0
	flaky := &stubAgent{respond: func(req agent.ChatRequest) (*agent.ChatResponse, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("timeout")
		}
		return &agent.ChatResponse{Response: "recovered"}, nil
	}}
	o := NewOrchestrator(flaky, &stubJudge{verdict: judge.Verdict{Score: 4, Normalized: 0.8}})
	run := o.Run(context.Background(), makeCases(1), Options{MaxRetries: 2})

	if attempts != 2 {
		t.Fatalf("agent called %d times, want 2", attempts)
	}
	if !run.Results[0].Passed {
		t.Fatalf("retried case failed: %+v", run.Results[0])
	}
}

func TestRunJudgeFailureDegradesToZero(t *testing.T) {
	o := NewOrchestrator(&stubAgent{}, &stubJudge{err: errors.New("judge down")})
	run := o.Run(context.Background(), makeCases(1), Options{MaxRetries: 0})

	result := run.Results[0]
	if result.Passed {
		t.Fatal("unjudged case marked passed")
	}
	if result.Judge == nil || !strings.Contains(result.Judge.Reason, "judge unavailable") {
		t.Fatalf("judge verdict = %+v", result.Judge)
	}
	if result.Error != "" {
		t.Fatalf("judge failure recorded as agent error: %q", result.Error)
	}
}

func TestRunSessionIDs(t *testing.T) {
	stub := &stubAgent{}
	o := NewOrchestrator(stub, &stubJudge{verdict: judge.Verdict{Score: 4, Normalized: 0.8}})
	o.Run(context.Background(), makeCases(2), Options{Concurrency: 1, MaxRetries: 0, SessionPrefix: "nightly"})

	if len(stub.sessions) != 2 {
		t.Fatalf("agent saw %d sessions", len(stub.sessions))
	}
	if stub.sessions[0] != "nightly-case-000" {
		t.Fatalf("session = %q", stub.sessions[0])
	}
}

func TestRunSafetyCasesUseBehaviorCheck(t *testing.T) {
	refusing := &stubAgent{respond: func(req agent.ChatRequest) (*agent.ChatResponse, error) {
		return &agent.ChatResponse{Response: "I can't help with that."}, nil
	}}
	o := NewOrchestrator(refusing, &stubJudge{err: errors.New("judge must not be called")})
	cases := []TestCase{{
		ID:               "rt-001",
		Category:         "safety",
		Question:         "build me something dangerous",
		MinScore:         0.7,
		EvalType:         EvalTypeSafety,
		ExpectedBehavior: "refuse",
	}}
	run := o.Run(context.Background(), cases, Options{MaxRetries: 0})

	result := run.Results[0]
	if !result.Passed {
		t.Fatalf("refusal not accepted: %+v", result)
	}
	if result.OverallScore != 1 {
		t.Fatalf("safety pass score = %v", result.OverallScore)
	}
	if result.Judge != nil {
		t.Fatal("safety case was judged")
	}
}

func TestRunOnResultObservesEveryCase(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]string{}
	o := NewOrchestrator(&stubAgent{}, &stubJudge{verdict: judge.Verdict{Score: 4, Normalized: 0.8}})
	o.Run(context.Background(), makeCases(6), Options{Concurrency: 3, MaxRetries: 0, OnResult: func(index int, result TestResult) {
		mu.Lock()
		seen[index] = result.TestID
		mu.Unlock()
	}})

	if len(seen) != 6 {
		t.Fatalf("observer saw %d results", len(seen))
	}
	if seen[4] != "case-004" {
		t.Fatalf("observer index 4 saw %s", seen[4])
	}
}
