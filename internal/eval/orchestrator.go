package eval

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"evalgate/internal/agent"
	"evalgate/internal/judge"
)

// AgentClient is the slice of the agent gateway the orchestrator uses.
type AgentClient interface {
	Chat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error)
}

// JudgeClient scores one rubric prompt. Implementations keep parse
// tolerance behind this boundary so a stricter structured-output judge can
// replace the default without touching callers.
type JudgeClient interface {
	Score(ctx context.Context, prompt string) (judge.Verdict, error)
}

type Orchestrator struct {
	agent AgentClient
	judge JudgeClient
}

func NewOrchestrator(agentClient AgentClient, judgeClient JudgeClient) *Orchestrator {
	return &Orchestrator{agent: agentClient, judge: judgeClient}
}

type Options struct {
	// Concurrency bounds in-flight test cases; each case runs in exactly
	// one goroutine, so a test id is never in flight twice.
	Concurrency    int
	SessionPrefix  string
	ConfigOverride map[string]any
	Metrics        []string
	CallTimeout    time.Duration
	// MaxRetries bounds re-attempts of the agent transport per case. A
	// transient blip should not count as a quality regression.
	MaxRetries int
	Provider   string
	Endpoint   string
	Dataset    string

	// OnResult observes each finished case; index is the dataset position.
	OnResult func(index int, result TestResult)
}

const (
	defaultConcurrency = 4
	defaultCallTimeout = 30 * time.Second
	defaultMaxRetries  = 2
	retryBaseDelay     = 500 * time.Millisecond
)

// Run drives every case of the dataset through the agent and the scoring
// path. The run always completes: a case whose agent call fails becomes an
// error-marked worst-score result, never a missing record. Results are
// collected by dataset index, so the persisted order is stable across runs
// regardless of completion order.
func (o *Orchestrator) Run(ctx context.Context, cases []TestCase, opts Options) Run {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	results := make([]TestResult, len(cases))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, tc := range cases {
		group.Go(func() error {
			result := o.runCase(groupCtx, tc, opts)
			results[i] = result
			if opts.OnResult != nil {
				opts.OnResult(i, result)
			}
			return nil
		})
	}
	// Workers never return errors; failures are encoded in the results.
	_ = group.Wait()

	run := Run{
		RunID:       "run_" + uuid.NewString(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Endpoint:    opts.Endpoint,
		Dataset:     opts.Dataset,
		Results:     results,
	}
	for _, result := range results {
		if result.Passed {
			run.Passed++
		} else {
			run.Failed++
		}
	}
	return run
}

func (o *Orchestrator) runCase(ctx context.Context, tc TestCase, opts Options) TestResult {
	result := TestResult{
		TestID:   tc.ID,
		Category: tc.Category,
		Input:    tc.Question,
		MinScore: tc.MinScore,
	}

	start := time.Now()
	resp, err := o.callAgent(ctx, tc, opts)
	result.LatencyMS = time.Since(start).Milliseconds()

	if err != nil {
		result.Output = "[AGENT ERROR] " + summarizeError(err)
		result.Error = summarizeError(err)
		result.Judge = &judge.Verdict{Score: 0, Normalized: 0, Reason: "agent call failed: " + summarizeError(err)}
		result.Metrics = ComputeAll(o.metricInput(tc, result, opts), opts.Metrics)
		return result
	}

	result.Output = resp.Response
	result.ToolCalls = len(resp.ToolCalls)
	result.Blocked = resp.Blocked

	if tc.EvalType == EvalTypeSafety {
		result.Passed = EvaluateSafety(tc, resp.Response, resp.Blocked)
		if result.Passed {
			result.OverallScore = 1
		}
		result.Metrics = ComputeAll(o.metricInputFromResponse(tc, result, resp, opts), opts.Metrics)
		return result
	}

	verdict, judgeErr := o.judge.Score(ctx, buildJudgePrompt(tc, resp.Response))
	if judgeErr != nil {
		verdict = judge.Verdict{Score: 0, Normalized: 0, Reason: "judge unavailable: " + summarizeError(judgeErr)}
	}
	result.Judge = &verdict
	result.OverallScore = verdict.Normalized
	result.Passed = result.OverallScore >= tc.MinScore
	result.Metrics = ComputeAll(o.metricInputFromResponse(tc, result, resp, opts), opts.Metrics)
	return result
}

func (o *Orchestrator) callAgent(ctx context.Context, tc TestCase, opts Options) (*agent.ChatResponse, error) {
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = defaultMaxRetries
	}
	req := agent.ChatRequest{
		Message:        tc.Question,
		SessionID:      sessionID(opts.SessionPrefix, tc.ID),
		ConfigOverride: opts.ConfigOverride,
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBaseDelay << (attempt - 1)):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := o.agent.Chat(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) metricInput(tc TestCase, result TestResult, opts Options) MetricInput {
	return MetricInput{
		Question:       tc.Question,
		Output:         result.Output,
		LatencyMS:      result.LatencyMS,
		ExpectedTools:  tc.ExpectedTools,
		RequiredFacts:  tc.RequiredFacts,
		ContextHasDate: contextHasDate(tc.Context),
		HasWebTool:     tc.HasWebTool,
		ExpectedLength: tc.ExpectedLength,
		Provider:       opts.Provider,
	}
}

func (o *Orchestrator) metricInputFromResponse(tc TestCase, result TestResult, resp *agent.ChatResponse, opts Options) MetricInput {
	in := o.metricInput(tc, result, opts)
	in.ToolsUsed = resp.ToolNames()
	if resp.Provider != "" {
		in.Provider = resp.Provider
	}
	if resp.Usage != nil {
		in.InputTokens = resp.Usage.InputTokens
		in.OutputTokens = resp.Usage.OutputTokens
	}
	return in
}

// buildJudgePrompt picks the most specific rubric the case supports.
func buildJudgePrompt(tc TestCase, answer string) string {
	switch {
	case strings.TrimSpace(tc.ExpectedAnswer) != "":
		return judge.CorrectnessPrompt(tc.Question, answer, tc.ExpectedAnswer)
	case len(tc.Context) > 0:
		return judge.FaithfulnessPrompt(tc.Question, answer, tc.Context)
	default:
		return judge.RelevancePrompt(tc.Question, answer)
	}
}

func sessionID(prefix, testID string) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = "eval"
	}
	return prefix + "-" + testID
}

func contextHasDate(context []string) bool {
	for _, doc := range context {
		if datePattern.MatchString(doc) {
			return true
		}
	}
	return false
}
