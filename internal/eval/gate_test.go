package eval

import (
	"testing"

	"evalgate/internal/judge"
)

func categorizedRun(results ...TestResult) Run {
	run := Run{RunID: "run_test"}
	for _, result := range results {
		AppendResult(&run, result)
	}
	return run
}

func scored(id, category string, score float64, passed bool) TestResult {
	return TestResult{
		TestID:       id,
		Category:     category,
		OverallScore: score,
		Passed:       passed,
		Judge:        &judge.Verdict{Score: score * 5, Normalized: score},
	}
}

func TestCheckGatePasses(t *testing.T) {
	run := categorizedRun(
		scored("t1", "knowledge", 0.8, true),
		scored("t2", "safety", 0.95, true),
		scored("t3", "reasoning", 0.65, true),
	)
	report := CheckGate(run, DefaultThresholds())

	if !report.Passed {
		t.Fatalf("gate failed: %+v", report.Checks)
	}
	if len(report.Checks) != 4 {
		t.Fatalf("got %d checks, want overall plus 3 categories", len(report.Checks))
	}
}

func TestCheckGateFailsOnWeakCategory(t *testing.T) {
	// Safety needs 0.90; 0.85 is above overall but still below the bar.
	run := categorizedRun(
		scored("t1", "knowledge", 0.9, true),
		scored("t2", "safety", 0.85, true),
	)
	report := CheckGate(run, DefaultThresholds())

	if report.Passed {
		t.Fatal("gate passed with weak safety category")
	}
	for _, check := range report.Checks {
		if check.Name == "safety" && check.Passed {
			t.Fatalf("safety check passed at %v", check.Score)
		}
		if check.Name == "knowledge" && !check.Passed {
			t.Fatalf("knowledge check failed at %v", check.Score)
		}
	}
}

func TestCheckGateFailsOnMeanOverallScore(t *testing.T) {
	// Every case clears its own min_score and the reasoning category clears
	// its 0.60 bar, but the run mean of 0.65 is below the 0.70 overall
	// threshold.
	run := categorizedRun(
		scored("t1", "reasoning", 0.65, true),
		scored("t2", "reasoning", 0.65, true),
		scored("t3", "reasoning", 0.65, true),
	)
	report := CheckGate(run, DefaultThresholds())

	if report.Passed {
		t.Fatal("gate passed with mean overall score 0.65")
	}
	if report.Checks[0].Name != "overall" || report.Checks[0].Passed {
		t.Fatalf("overall check = %+v", report.Checks[0])
	}
	if report.Checks[0].Score != 0.65 {
		t.Fatalf("overall score = %v, want 0.65", report.Checks[0].Score)
	}
	for _, check := range report.Checks[1:] {
		if !check.Passed {
			t.Fatalf("category check failed unexpectedly: %+v", check)
		}
	}
}

func TestCheckGateUnknownCategoryUsesOverall(t *testing.T) {
	run := categorizedRun(scored("t1", "smalltalk", 0.72, true))
	report := CheckGate(run, DefaultThresholds())

	if !report.Passed {
		t.Fatalf("unknown category not held to overall default: %+v", report.Checks)
	}

	run = categorizedRun(scored("t1", "smalltalk", 0.65, true))
	if CheckGate(run, DefaultThresholds()).Passed {
		t.Fatal("0.65 passed the 0.70 overall default")
	}
}

func TestThresholdsFor(t *testing.T) {
	thresholds := DefaultThresholds()
	if got := thresholds.For("rag"); got != 0.75 {
		t.Fatalf("rag threshold = %v", got)
	}
	if got := thresholds.For("unlisted"); got != 0.70 {
		t.Fatalf("fallback threshold = %v", got)
	}
}

func TestCheckGoldenAllOrNothing(t *testing.T) {
	clean := categorizedRun(
		scored("g1", "knowledge", 0.8, true),
		scored("g2", "knowledge", 1.0, true),
	)
	report := CheckGolden(clean)
	if !report.Passed || report.PassedCount != 2 {
		t.Fatalf("clean golden run = %+v", report)
	}

	tainted := categorizedRun(
		scored("g1", "knowledge", 0.8, true),
		scored("g2", "knowledge", 0.6, true),
	)
	report = CheckGolden(tainted)
	if report.Passed {
		t.Fatal("golden set passed with a 3/5 case")
	}
	if len(report.Failures) != 1 || report.Failures[0].TestID != "g2" {
		t.Fatalf("failures = %+v", report.Failures)
	}
}

func TestCheckGoldenEmptyRunFails(t *testing.T) {
	if CheckGolden(Run{}).Passed {
		t.Fatal("empty golden run passed")
	}
}
