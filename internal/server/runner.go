package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"evalgate/internal/eval"
)

// EvalRunner is the slice of the orchestrator the run manager drives.
type EvalRunner interface {
	Run(ctx context.Context, cases []eval.TestCase, opts eval.Options) eval.Run
}

type RunManager struct {
	cfg        ServerConfig
	store      Store
	runner     EvalRunner
	obs        *Observability
	queue      chan queuedRun
	wg         sync.WaitGroup
	quickLimit *ipRateLimiter
}

type RunnerService interface {
	CreateRun(request RunRequest, principal Principal, source string) (RunMeta, error)
	QuickEval(request QuickEvalRequest, ipHash, uaHash string) (eval.QAEvaluation, error)
}

type queuedRun struct {
	RunID       string
	Request     RunRequest
	Creator     Principal
	CreatorType string
	Source      string
}

func NewRunManager(cfg ServerConfig, store Store, runner EvalRunner, obs *Observability) *RunManager {
	maxParallel := cfg.Eval.MaxParallelRuns
	if maxParallel <= 0 {
		maxParallel = 2
	}
	manager := &RunManager{
		cfg:        cfg,
		store:      store,
		runner:     runner,
		obs:        obs,
		queue:      make(chan queuedRun, maxParallel*8),
		quickLimit: newIPRateLimiter(cfg.Limits.QuickEvalRPM),
	}
	for i := 0; i < maxParallel; i++ {
		manager.wg.Add(1)
		go func() {
			defer manager.wg.Done()
			manager.worker()
		}()
	}
	return manager
}

func (m *RunManager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
}

func (m *RunManager) CreateRun(request RunRequest, principal Principal, source string) (RunMeta, error) {
	if strings.TrimSpace(request.DatasetPath) == "" {
		return RunMeta{}, errors.New("dataset is required")
	}
	mode, err := normalizeRunMode(request.Mode)
	if err != nil {
		return RunMeta{}, err
	}
	request.Mode = mode
	if request.TimeoutSec <= 0 {
		request.TimeoutSec = m.cfg.Eval.DefaultTimeoutSec
	}
	if request.Concurrency <= 0 {
		request.Concurrency = m.cfg.Eval.DefaultConcurrency
	}
	runID, err := randomID("run")
	if err != nil {
		return RunMeta{}, err
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      source,
		CreatorType: "admin",
		CreatorSub:  principal.Subject,
		Request:     request,
		CreatedAt:   nowRFC3339(),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "queue", "run queued", map[string]any{
		"source":  source,
		"dataset": request.DatasetPath,
		"mode":    request.Mode,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "admin",
		ActorSub:  principal.Subject,
		Action:    "run.create",
		Result:    "queued",
	})
	m.queue <- queuedRun{
		RunID:       runID,
		Request:     request,
		Creator:     principal,
		CreatorType: "admin",
		Source:      source,
	}
	return meta, nil
}

// QuickEval scores a question/answer pair with the heuristic scorers. No
// agent is involved, so it runs synchronously and is rate limited per IP.
func (m *RunManager) QuickEval(request QuickEvalRequest, ipHash, uaHash string) (eval.QAEvaluation, error) {
	if !m.quickLimit.Allow(ipHash) {
		m.obs.MarkRateLimited(context.Background(), "quick_eval")
		_ = m.store.AppendAudit(AuditEvent{
			Timestamp: nowRFC3339(),
			ActorType: "user",
			Action:    "quick_eval.reject",
			Result:    "rate_limited",
			IPHash:    ipHash,
			UAHash:    uaHash,
		})
		return eval.QAEvaluation{}, errors.New("quick eval rate limit reached")
	}
	if strings.TrimSpace(request.Question) == "" {
		return eval.QAEvaluation{}, errors.New("question is required")
	}
	if strings.TrimSpace(request.Answer) == "" {
		return eval.QAEvaluation{}, errors.New("answer is required")
	}
	result := eval.EvaluateAnswer(request.Question, request.Answer, request.Context)
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		ActorType: "user",
		Action:    "quick_eval.score",
		Result:    fmt.Sprintf("overall=%.2f", result.Overall),
		IPHash:    ipHash,
		UAHash:    uaHash,
	})
	return result, nil
}

func (m *RunManager) worker() {
	for queued := range m.queue {
		m.executeRun(queued)
	}
}

func (m *RunManager) executeRun(queued queuedRun) {
	startedAt := nowRFC3339()
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = "running"
		meta.StartedAt = startedAt
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "start", "run started", nil)

	cases, err := eval.LoadDataset(m.resolveDataset(queued.Request.DatasetPath))
	if err != nil {
		m.failRun(queued, "dataset load failed", err)
		return
	}
	cases = eval.FilterCases(cases, queued.Request.CaseIDs)
	if len(cases) == 0 {
		m.failRun(queued, "dataset selection empty", errors.New("no cases matched the selection"))
		return
	}

	timeout := time.Duration(queued.Request.TimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	opts := eval.Options{
		Concurrency:    queued.Request.Concurrency,
		ConfigOverride: queued.Request.ConfigOverride,
		Metrics:        queued.Request.Metrics,
		Endpoint:       m.cfg.Agent.BaseURL,
		Dataset:        queued.Request.DatasetPath,
		OnResult: func(index int, result eval.TestResult) {
			_, _ = m.store.AppendRunEvent(queued.RunID, "case_result", result.TestID, map[string]any{
				"index":      index,
				"category":   result.Category,
				"passed":     result.Passed,
				"score":      result.OverallScore,
				"latency_ms": result.LatencyMS,
			})
			m.obs.MarkCase(ctx, result.Category, result.LatencyMS)
		},
	}
	report := m.runner.Run(ctx, cases, opts)

	var gate *eval.GateReport
	var golden *eval.GoldenReport
	gatePassed := true
	switch queued.Request.Mode {
	case "golden":
		g := eval.CheckGolden(report)
		golden = &g
		gatePassed = g.Passed
		if !g.Passed {
			m.obs.MarkGateFail(ctx, "golden")
		}
	default:
		g := eval.CheckGate(report, m.cfg.Thresholds())
		gate = &g
		gatePassed = g.Passed
		for _, check := range g.Checks {
			if !check.Passed {
				m.obs.MarkGateFail(ctx, check.Name)
			}
		}
	}

	status := "pass"
	switch {
	case !gatePassed:
		status = "fail"
	case report.Failed > 0:
		status = "warn"
	}

	prefix := eval.PrefixEval
	if queued.Request.Mode == "golden" {
		prefix = eval.PrefixGolden
	}
	reportPath, saveErr := eval.SaveReport(m.cfg.Eval.ReportsDir, prefix, report)
	if saveErr != nil {
		_, _ = m.store.AppendRunEvent(queued.RunID, "error", "report persist failed", map[string]any{
			"error": saveErr.Error(),
		})
	}

	if queued.Request.BaselineRunID != "" {
		m.compareToBaseline(queued, report, &status)
	}

	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = status
		meta.FinishedAt = nowRFC3339()
		meta.Report = &report
		meta.Gate = gate
		meta.Golden = golden
		meta.ReportPath = reportPath
		if status == "fail" {
			meta.Error = "run did not pass its gate"
		}
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "completed", "run completed", map[string]any{
		"status":    status,
		"passed":    report.Passed,
		"failed":    report.Failed,
		"pass_rate": report.PassRate(),
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     queued.RunID,
		ActorType: queued.CreatorType,
		ActorSub:  queued.Creator.Subject,
		Action:    "run.completed",
		Result:    status,
		Detail:    fmt.Sprintf("cases=%d mode=%s", len(report.Results), queued.Request.Mode),
	})
	m.obs.MarkRun(ctx, status)
}

func (m *RunManager) failRun(queued queuedRun, message string, err error) {
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = "fail"
		meta.Error = message + ": " + err.Error()
		meta.FinishedAt = nowRFC3339()
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "error", message, map[string]any{"error": err.Error()})
	m.obs.MarkRun(context.Background(), "fail")
}

// compareToBaseline joins the fresh report against a stored baseline run
// and records the outcome as run events. A failing comparison downgrades
// the run status.
func (m *RunManager) compareToBaseline(queued queuedRun, report eval.Run, status *string) {
	baseline, ok := m.store.GetRun(queued.Request.BaselineRunID)
	if !ok || baseline.Report == nil {
		_, _ = m.store.AppendRunEvent(queued.RunID, "regression", "baseline unavailable", map[string]any{
			"baseline_run_id": queued.Request.BaselineRunID,
		})
		return
	}
	comparison := eval.DetectRegressions(*baseline.Report, report, 0)
	_, _ = m.store.AppendRunEvent(queued.RunID, "regression", "baseline comparison finished", map[string]any{
		"baseline_run_id": queued.Request.BaselineRunID,
		"verdict":         comparison.Verdict,
		"regressions":     len(comparison.Regressions),
		"improvements":    len(comparison.Improvements),
		"regression_rate": comparison.RegressionRate,
	})
	if comparison.Verdict == eval.StatusFail {
		*status = "fail"
	}
}

func (m *RunManager) resolveDataset(path string) string {
	if filepath.IsAbs(path) || strings.TrimSpace(m.cfg.Eval.DatasetDir) == "" {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") {
		return path
	}
	return filepath.Join(m.cfg.Eval.DatasetDir, path)
}

func normalizeRunMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "quality":
		return "quality", nil
	case "golden":
		return "golden", nil
	default:
		return "", fmt.Errorf("unsupported run mode: %s", mode)
	}
}

func randomID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

type ipRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	records map[string][]time.Time
}

func newIPRateLimiter(rpm int) *ipRateLimiter {
	if rpm <= 0 {
		rpm = 6
	}
	return &ipRateLimiter{
		rpm:     rpm,
		records: map[string][]time.Time{},
	}
}

func (l *ipRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	items := l.records[key]
	items = filterRecentTime(items, cutoff)
	if len(items) >= l.rpm {
		l.records[key] = items
		return false
	}
	items = append(items, now)
	l.records[key] = items
	return true
}

func filterRecentTime(items []time.Time, cutoff time.Time) []time.Time {
	out := items[:0]
	for _, item := range items {
		if item.After(cutoff) {
			out = append(out, item)
		}
	}
	return out
}

func hashString(input string) string {
	sum := sha256Sum(input)
	return sum[:16]
}

func sha256Sum(input string) string {
	hash := sha256.New()
	_, _ = hash.Write([]byte(input))
	return hex.EncodeToString(hash.Sum(nil))
}
