package eval

import (
	"time"
)

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

type Regression struct {
	TestID         string   `json:"test_id"`
	Category       string   `json:"category"`
	Input          string   `json:"input"`
	BaselineScore  float64  `json:"baseline_score"`
	CurrentScore   float64  `json:"current_score"`
	BaselineOutput string   `json:"baseline_output"`
	CurrentOutput  string   `json:"current_output"`
	Severity       Severity `json:"severity"`
}

type Improvement struct {
	TestID        string  `json:"test_id"`
	Category      string  `json:"category"`
	BaselineScore float64 `json:"baseline_score"`
	CurrentScore  float64 `json:"current_score"`
	Delta         float64 `json:"delta"`
}

// RegressionReport is derived from two read-only runs and is recomputed on
// every comparison; it is never cached across threshold changes.
type RegressionReport struct {
	BaselineRun    string        `json:"baseline_run"`
	CurrentRun     string        `json:"current_run"`
	Timestamp      string        `json:"timestamp"`
	Threshold      float64       `json:"threshold"`
	Regressions    []Regression  `json:"regressions"`
	Improvements   []Improvement `json:"improvements"`
	Unchanged      int           `json:"unchanged"`
	RegressionRate float64       `json:"regression_rate"`
	Verdict        Status        `json:"verdict"`
}

// DetectRegressions joins two runs by test id and classifies score drops on
// the raw 1-5 judge scale. Ids present in only one run are skipped, not
// counted as regressions. A threshold <= 0 defaults to 1.
func DetectRegressions(baseline, current Run, threshold float64) RegressionReport {
	if threshold <= 0 {
		threshold = 1
	}

	currentByID := make(map[string]TestResult, len(current.Results))
	for _, result := range current.Results {
		currentByID[result.TestID] = result
	}

	report := RegressionReport{
		BaselineRun:  baseline.RunID,
		CurrentRun:   current.RunID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Threshold:    threshold,
		Regressions:  []Regression{},
		Improvements: []Improvement{},
	}

	shared := 0
	for _, base := range baseline.Results {
		curr, ok := currentByID[base.TestID]
		if !ok {
			continue
		}
		shared++
		baseScore := judgeScore(base)
		currScore := judgeScore(curr)
		delta := currScore - baseScore

		switch {
		case delta <= -threshold:
			report.Regressions = append(report.Regressions, Regression{
				TestID:         base.TestID,
				Category:       base.Category,
				Input:          base.Input,
				BaselineScore:  baseScore,
				CurrentScore:   currScore,
				BaselineOutput: base.Output,
				CurrentOutput:  curr.Output,
				Severity:       classifySeverity(baseScore, currScore),
			})
		case delta >= threshold:
			report.Improvements = append(report.Improvements, Improvement{
				TestID:        base.TestID,
				Category:      base.Category,
				BaselineScore: baseScore,
				CurrentScore:  currScore,
				Delta:         delta,
			})
		default:
			report.Unchanged++
		}
	}

	if shared > 0 {
		report.RegressionRate = round1(float64(len(report.Regressions)) / float64(shared) * 100)
	}
	report.Verdict = regressionVerdict(report)
	return report
}

func classifySeverity(baseline, current float64) Severity {
	drop := baseline - current
	if baseline >= 4 && current <= 2 {
		return SeverityCritical
	}
	if drop >= 3 {
		return SeverityCritical
	}
	if drop >= 2 {
		return SeverityMajor
	}
	return SeverityMinor
}

// Any critical regression fails the comparison outright regardless of rate.
func regressionVerdict(report RegressionReport) Status {
	for _, reg := range report.Regressions {
		if reg.Severity == SeverityCritical {
			return StatusFail
		}
	}
	switch {
	case report.RegressionRate > 10:
		return StatusFail
	case report.RegressionRate > 5:
		return StatusWarn
	default:
		return StatusPass
	}
}
