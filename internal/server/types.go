package server

import (
	"time"

	"evalgate/internal/eval"
)

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// RunRequest asks the server to evaluate a dataset. Mode selects the gate
// applied after scoring: "quality" uses category thresholds, "golden" holds
// every case to the golden bar.
type RunRequest struct {
	DatasetPath    string         `json:"dataset"`
	Mode           string         `json:"mode,omitempty"`
	Metrics        []string       `json:"metrics,omitempty"`
	ConfigOverride map[string]any `json:"config_override,omitempty"`
	Concurrency    int            `json:"concurrency,omitempty"`
	TimeoutSec     int            `json:"timeout_sec,omitempty"`
	BaselineRunID  string         `json:"baseline_run_id,omitempty"`
	CaseIDs        []string       `json:"case_ids,omitempty"`
}

// QuickEvalRequest scores a single question/answer pair synchronously with
// the heuristic scorers; no agent call is made.
type QuickEvalRequest struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Context  []string `json:"context,omitempty"`
}

type RunMeta struct {
	RunID        string             `json:"run_id"`
	Status       string             `json:"status"`
	CreatorType  string             `json:"creator_type"`
	CreatorSub   string             `json:"creator_sub,omitempty"`
	CreatorEmail string             `json:"creator_email,omitempty"`
	Source       string             `json:"source"`
	Request      RunRequest         `json:"request"`
	StartedAt    string             `json:"started_at,omitempty"`
	FinishedAt   string             `json:"finished_at,omitempty"`
	CreatedAt    string             `json:"created_at"`
	Error        string             `json:"error,omitempty"`
	Report       *eval.Run          `json:"report,omitempty"`
	Gate         *eval.GateReport   `json:"gate,omitempty"`
	Golden       *eval.GoldenReport `json:"golden,omitempty"`
	ReportPath   string             `json:"report_path,omitempty"`
}

type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	ActorType string `json:"actor_type"`
	ActorSub  string `json:"actor_sub,omitempty"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	IPHash    string `json:"ip_hash,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type RunEvent struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt     string  `json:"generated_at"`
	TotalRuns       int     `json:"total_runs"`
	RunningRuns     int     `json:"running_runs"`
	PassRuns        int     `json:"pass_runs"`
	WarnRuns        int     `json:"warn_runs"`
	FailRuns        int     `json:"fail_runs"`
	GateFailures    int     `json:"gate_failures"`
	AverageDuration int64   `json:"average_duration_ms"`
	AveragePassRate float64 `json:"average_pass_rate"`
}

// StoreSnapshot is the on-disk shape of the in-memory store.
type StoreSnapshot struct {
	Runs   []RunMeta             `json:"runs"`
	Events map[string][]RunEvent `json:"events"`
	Audit  []AuditEvent          `json:"audit"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
