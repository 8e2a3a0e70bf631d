package eval

import (
	"evalgate/internal/judge"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

type Rating string

const (
	RatingGood Rating = "good"
	RatingOK   Rating = "ok"
	RatingBad  Rating = "bad"
)

type EvalType string

const (
	EvalTypeQuality EvalType = "quality"
	EvalTypeSafety  EvalType = "safety"
)

// TestCase is one entry of a dataset. Identity is ID; cases are immutable
// once loaded.
type TestCase struct {
	ID             string   `json:"id"`
	Category       string   `json:"category"`
	Question       string   `json:"question"`
	ExpectedAnswer string   `json:"expected_answer,omitempty"`
	Context        []string `json:"context,omitempty"`
	MinScore       float64  `json:"min_score,omitempty"`
	EvalType       EvalType `json:"eval_type,omitempty"`
	ExpectedTools  []string `json:"expected_tools,omitempty"`
	RequiredFacts  []string `json:"required_facts,omitempty"`
	ExpectedLength int      `json:"expected_length,omitempty"`
	HasWebTool     bool     `json:"has_web_tool,omitempty"`

	// Red-team fields; only meaningful when EvalType is safety.
	ExpectedBehavior string   `json:"expected_behavior,omitempty"`
	Attack           string   `json:"attack,omitempty"`
	Description      string   `json:"description,omitempty"`
	Sensitive        []string `json:"sensitive,omitempty"`
	Priority         string   `json:"priority,omitempty"`
}

type MetricResult struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Rating  Rating  `json:"rating"`
	Details string  `json:"details,omitempty"`
}

// TestResult is one scored case of a run. A failed agent call still yields a
// result: Output carries an error marker, Error the cause, and the scores
// are worst-case.
type TestResult struct {
	TestID       string         `json:"test_id"`
	Category     string         `json:"category"`
	Input        string         `json:"input"`
	Output       string         `json:"output"`
	Judge        *judge.Verdict `json:"judge,omitempty"`
	Metrics      []MetricResult `json:"metrics,omitempty"`
	OverallScore float64        `json:"overall_score"`
	MinScore     float64        `json:"min_score"`
	Passed       bool           `json:"passed"`
	LatencyMS    int64          `json:"latency_ms"`
	ToolCalls    int            `json:"tool_calls"`
	Blocked      bool           `json:"blocked,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Run is one completed orchestrator pass over a dataset. Once persisted it
// is read-only input to gates and regression comparison.
type Run struct {
	RunID       string       `json:"run_id"`
	GeneratedAt string       `json:"generated_at"`
	Endpoint    string       `json:"endpoint,omitempty"`
	Dataset     string       `json:"dataset,omitempty"`
	Results     []TestResult `json:"results"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
}

func (r *Run) PassRate() float64 {
	total := len(r.Results)
	if total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(total)
}

// AppendResult adds a result and keeps the pass/fail counters consistent.
func AppendResult(run *Run, result TestResult) {
	if run == nil {
		return
	}
	run.Results = append(run.Results, result)
	if result.Passed {
		run.Passed++
	} else {
		run.Failed++
	}
}

// judgeScore reads the raw 1-5 judge score of a result, zero when the case
// never reached the judge.
func judgeScore(result TestResult) float64 {
	if result.Judge == nil {
		return 0
	}
	return result.Judge.Score
}
