package eval

import (
	"context"
	"time"
)

// Variant is one side of an A/B comparison: a label plus the config
// override the agent should run under.
type Variant struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

type ABTest struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Hypothesis string     `json:"hypothesis,omitempty"`
	VariantA   Variant    `json:"variant_a"`
	VariantB   Variant    `json:"variant_b"`
	TestCases  []TestCase `json:"test_cases"`
	// Margin is the score-point lead a variant needs to win; <= 0 means
	// the default of 2 points on the 0-100 scale.
	Margin float64 `json:"margin,omitempty"`
}

const defaultABMargin = 2.0

type CategoryDelta struct {
	VariantA float64 `json:"variant_a"`
	VariantB float64 `json:"variant_b"`
	Delta    float64 `json:"delta"`
	Winner   string  `json:"winner"`
}

type ABReport struct {
	ID              string                   `json:"id"`
	Timestamp       string                   `json:"timestamp"`
	Name            string                   `json:"name"`
	Hypothesis      string                   `json:"hypothesis,omitempty"`
	VariantAName    string                   `json:"variant_a_name"`
	VariantBName    string                   `json:"variant_b_name"`
	VariantAScore   float64                  `json:"variant_a_score"`
	VariantBScore   float64                  `json:"variant_b_score"`
	VariantAResults []TestResult             `json:"variant_a_results"`
	VariantBResults []TestResult             `json:"variant_b_results"`
	Winner          string                   `json:"winner"`
	Categories      map[string]CategoryDelta `json:"categories,omitempty"`
}

// CompareAB runs the same cases under both variant configs and scores each
// side on the 0-100 scale. The winner needs a lead above the margin;
// anything closer is a tie.
func (o *Orchestrator) CompareAB(ctx context.Context, test ABTest, opts Options) ABReport {
	margin := test.Margin
	if margin <= 0 {
		margin = defaultABMargin
	}

	runA := o.runVariant(ctx, test, test.VariantA, opts)
	runB := o.runVariant(ctx, test, test.VariantB, opts)

	report := ABReport{
		ID:              test.ID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Name:            test.Name,
		Hypothesis:      test.Hypothesis,
		VariantAName:    test.VariantA.Name,
		VariantBName:    test.VariantB.Name,
		VariantAScore:   variantScore(runA.Results),
		VariantBScore:   variantScore(runB.Results),
		VariantAResults: runA.Results,
		VariantBResults: runB.Results,
	}
	report.Winner = decideWinner(report.VariantAScore, report.VariantBScore, margin)
	report.Categories = categoryDeltas(runA.Results, runB.Results, margin)
	return report
}

// categoryDeltas compares per-category scores over the union of both
// variants' categories; a category one side never produced scores 0 there.
func categoryDeltas(resultsA, resultsB []TestResult, margin float64) map[string]CategoryDelta {
	scoresA := categoryScores(resultsA)
	scoresB := categoryScores(resultsB)
	deltas := make(map[string]CategoryDelta, len(scoresA))
	for category := range scoresB {
		if _, ok := scoresA[category]; !ok {
			scoresA[category] = 0
		}
	}
	for category, scoreA := range scoresA {
		scoreB := scoresB[category]
		deltas[category] = CategoryDelta{
			VariantA: scoreA,
			VariantB: scoreB,
			Delta:    round1(scoreB - scoreA),
			Winner:   decideWinner(scoreA, scoreB, margin),
		}
	}
	return deltas
}

func (o *Orchestrator) runVariant(ctx context.Context, test ABTest, variant Variant, opts Options) Run {
	opts.SessionPrefix = "ab-test-" + variant.Name
	opts.ConfigOverride = variant.Config
	return o.Run(ctx, test.TestCases, opts)
}

// variantScore is the judge-score fraction earned over the maximum, on a
// 0-100 scale. An n-case variant can earn at most n*5 judge points.
func variantScore(results []TestResult) float64 {
	if len(results) == 0 {
		return 0
	}
	total := 0.0
	for _, result := range results {
		total += judgeScore(result)
	}
	return round1(total / (float64(len(results)) * 5) * 100)
}

func categoryScores(results []TestResult) map[string]float64 {
	byCategory := map[string][]TestResult{}
	for _, result := range results {
		byCategory[result.Category] = append(byCategory[result.Category], result)
	}
	scores := make(map[string]float64, len(byCategory))
	for category, group := range byCategory {
		scores[category] = variantScore(group)
	}
	return scores
}

func decideWinner(scoreA, scoreB, margin float64) string {
	switch {
	case scoreB-scoreA > margin:
		return "b"
	case scoreA-scoreB > margin:
		return "a"
	default:
		return "tie"
	}
}
