package server

import (
	"path/filepath"
	"testing"

	"evalgate/internal/eval"
	"evalgate/internal/judge"
)

func TestMemoryStoreRunLifecycle(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	meta := RunMeta{
		RunID:       "run_test_1",
		Status:      "queued",
		Source:      "test",
		CreatorType: "admin",
		CreatedAt:   nowRFC3339(),
	}
	if err := store.CreateRun(meta); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}
	event, err := store.AppendRunEvent(meta.RunID, "queue", "queued", nil)
	if err != nil {
		t.Fatalf("AppendRunEvent error: %v", err)
	}
	if event.Seq != 1 {
		t.Fatalf("expected first seq=1, got %d", event.Seq)
	}
	report := eval.Run{RunID: meta.RunID, GeneratedAt: nowRFC3339()}
	eval.AppendResult(&report, eval.TestResult{
		TestID:    "case-1",
		Category:  "knowledge",
		Judge:     &judge.Verdict{Score: 4.5, Normalized: 0.9},
		Passed:    true,
		LatencyMS: 120,
	})
	updated, err := store.UpdateRun(meta.RunID, func(item *RunMeta) {
		item.Status = "pass"
		item.Report = &report
		item.Gate = &eval.GateReport{RunID: meta.RunID, Passed: true}
	})
	if err != nil {
		t.Fatalf("UpdateRun error: %v", err)
	}
	if updated.Status != "pass" {
		t.Fatalf("expected status pass, got %s", updated.Status)
	}
	if updated.Report == nil || updated.Report.Passed != 1 {
		t.Fatalf("report not stored with run: %+v", updated.Report)
	}
}

func TestMemoryStoreOverviewCountsGateFailures(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	addRun := func(runID, status string, score float64, gatePassed bool) {
		report := eval.Run{RunID: runID, GeneratedAt: nowRFC3339()}
		eval.AppendResult(&report, eval.TestResult{
			TestID:    "t1",
			Judge:     &judge.Verdict{Score: score, Normalized: score / 5},
			Passed:    score >= 3.5,
			LatencyMS: 100,
		})
		meta := RunMeta{
			RunID:       runID,
			Status:      status,
			CreatorType: "admin",
			CreatedAt:   nowRFC3339(),
			Report:      &report,
			Gate:        &eval.GateReport{RunID: runID, Passed: gatePassed},
		}
		if err := store.CreateRun(meta); err != nil {
			t.Fatalf("CreateRun %s: %v", runID, err)
		}
	}
	addRun("run_a", "pass", 5, true)
	addRun("run_b", "fail", 1, false)
	addRun("run_c", "fail", 2, false)

	overview := store.GetMetricsOverview()
	if overview.TotalRuns != 3 {
		t.Fatalf("total runs = %d", overview.TotalRuns)
	}
	if overview.PassRuns != 1 || overview.FailRuns != 2 {
		t.Fatalf("status counts = %+v", overview)
	}
	if overview.GateFailures != 2 {
		t.Fatalf("gate failures = %d", overview.GateFailures)
	}
	if overview.AverageDuration != 100 {
		t.Fatalf("average duration = %d", overview.AverageDuration)
	}
}

func TestMemoryStorePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	meta := RunMeta{
		RunID:       "run_persist",
		Status:      "pass",
		CreatorType: "admin",
		CreatedAt:   nowRFC3339(),
	}
	if err := store.CreateRun(meta); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}
	if err := store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     meta.RunID,
		ActorType: "admin",
		Action:    "run.completed",
		Result:    "ok",
	}); err != nil {
		t.Fatalf("AppendAudit error: %v", err)
	}

	reloaded, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	got, ok := reloaded.GetRun("run_persist")
	if !ok || got.Status != "pass" {
		t.Fatalf("run not persisted: ok=%v meta=%+v", ok, got)
	}
	audit := reloaded.ListAudit(10)
	if len(audit) != 1 || audit[0].Action != "run.completed" {
		t.Fatalf("audit not persisted: %+v", audit)
	}
}

func TestMemoryStoreListRunsByCreator(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	for i, sub := range []string{"alice", "bob", "alice"} {
		meta := RunMeta{
			RunID:       "run_" + string(rune('a'+i)),
			Status:      "pass",
			CreatorType: "user",
			CreatorSub:  sub,
			CreatedAt:   nowRFC3339(),
		}
		if err := store.CreateRun(meta); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}
	runs := store.ListRunsByCreator("alice", 10)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs for alice, got %d", len(runs))
	}
	for _, run := range runs {
		if run.CreatorSub != "alice" {
			t.Fatalf("wrong creator: %+v", run)
		}
	}
}
