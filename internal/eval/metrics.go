package eval

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MetricInput is everything a metric plugin may look at for one test
// outcome. Plugins are pure functions of this input.
type MetricInput struct {
	Question       string
	Output         string
	LatencyMS      int64
	ToolsUsed      []string
	ExpectedTools  []string
	RequiredFacts  []string
	ContextHasDate bool
	HasWebTool     bool
	ExpectedLength int
	Provider       string
	InputTokens    int
	OutputTokens   int
}

type Metric interface {
	Name() string
	Compute(in MetricInput) MetricResult
}

func AvailableMetrics() []Metric {
	return []Metric{
		LatencyMetric{},
		ToolEfficiencyMetric{},
		HallucinationMetric{},
		VerbosityMetric{},
		CostMetric{},
	}
}

func DefaultMetricOrder() []string {
	return []string{"latency", "tool_efficiency", "hallucination_safety", "verbosity", "cost"}
}

func ResolveMetricSelection(selection string) []string {
	value := strings.TrimSpace(strings.ToLower(selection))
	if value == "" || value == "all" {
		return DefaultMetricOrder()
	}
	items := strings.Split(value, ",")
	names := make([]string, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(strings.ToLower(item))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// ComputeAll runs the named metrics against one outcome, in the given order.
// Unknown names are skipped; an empty selection runs the full set. Plugins
// are independent, so order only affects presentation.
func ComputeAll(in MetricInput, names []string) []MetricResult {
	all := make(map[string]Metric)
	for _, m := range AvailableMetrics() {
		all[m.Name()] = m
	}
	if len(names) == 0 {
		names = DefaultMetricOrder()
	}
	out := make([]MetricResult, 0, len(names))
	for _, name := range names {
		metric, ok := all[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		out = append(out, metric.Compute(in))
	}
	return out
}

type LatencyMetric struct{}

func (LatencyMetric) Name() string { return "latency" }

func (LatencyMetric) Compute(in MetricInput) MetricResult {
	ms := in.LatencyMS
	rating := RatingBad
	switch {
	case ms < 2000:
		rating = RatingGood
	case ms < 5000:
		rating = RatingOK
	}
	return MetricResult{
		Name:    "latency",
		Value:   float64(ms),
		Unit:    "ms",
		Rating:  rating,
		Details: fmt.Sprintf("Time to complete: %dms", ms),
	}
}

type ToolEfficiencyMetric struct{}

func (ToolEfficiencyMetric) Name() string { return "tool_efficiency" }

// Unnecessary tool calls are penalized at half the weight of missed ones:
// calling a tool needlessly wastes a round trip, failing to use an
// available tool usually produces a wrong answer.
func (ToolEfficiencyMetric) Compute(in MetricInput) MetricResult {
	if len(in.ExpectedTools) == 0 && len(in.ToolsUsed) == 0 {
		return MetricResult{
			Name: "tool_efficiency", Value: 100, Unit: "%", Rating: RatingGood,
			Details: "No tools needed or used",
		}
	}
	if len(in.ExpectedTools) == 0 {
		return MetricResult{
			Name: "tool_efficiency", Value: 50, Unit: "%", Rating: RatingOK,
			Details: fmt.Sprintf("Used %d tools when none expected", len(in.ToolsUsed)),
		}
	}

	expected := toSet(in.ExpectedTools)
	actual := toSet(in.ToolsUsed)
	correct := 0
	for name := range expected {
		if actual[name] {
			correct++
		}
	}
	unnecessary := 0
	for name := range actual {
		if !expected[name] {
			unnecessary++
		}
	}
	missed := len(expected) - correct

	score := (float64(correct) - float64(unnecessary)*0.5) / float64(len(expected)) * 100
	if score < 0 {
		score = 0
	}
	rating := RatingBad
	switch {
	case score >= 90:
		rating = RatingGood
	case score >= 60:
		rating = RatingOK
	}
	return MetricResult{
		Name:    "tool_efficiency",
		Value:   round1(score),
		Unit:    "%",
		Rating:  rating,
		Details: fmt.Sprintf("Correct: %d, Unnecessary: %d, Missed: %d", correct, unnecessary, missed),
	}
}

var (
	datePattern = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`)
	urlPattern  = regexp.MustCompile(`https?://\S+`)
	asOfPattern = regexp.MustCompile(`(?i)as of (January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}`)
)

type HallucinationMetric struct{}

func (HallucinationMetric) Name() string { return "hallucination_safety" }

// Compute is a lexical heuristic, not a semantic fact-checker: it flags
// surface patterns that tend to accompany fabrication and checks required
// facts by literal presence. Hallucinations it is not pattern-matched to
// detect score clean.
func (HallucinationMetric) Compute(in MetricInput) MetricResult {
	var signals []string

	if datePattern.MatchString(in.Output) && !in.ContextHasDate {
		signals = append(signals, "Specific date without source")
	}
	if urls := urlPattern.FindAllString(in.Output, 2); len(urls) > 0 && !in.HasWebTool {
		signals = append(signals, fmt.Sprintf("URLs without web access: %v", urls))
	}
	if asOfPattern.MatchString(in.Output) {
		signals = append(signals, "Temporal claim without source")
	}

	missingFacts := 0
	lower := strings.ToLower(in.Output)
	for _, fact := range in.RequiredFacts {
		if !strings.Contains(lower, strings.ToLower(fact)) {
			missingFacts++
		}
	}

	score := 100 - float64(len(signals))*20 - float64(missingFacts)*30
	if score < 0 {
		score = 0
	}
	rating := RatingBad
	switch {
	case score >= 80:
		rating = RatingGood
	case score >= 50:
		rating = RatingOK
	}
	details := "No hallucination signals detected"
	if len(signals) > 0 {
		details = strings.Join(signals, "; ")
	}
	if missingFacts > 0 {
		details += fmt.Sprintf("; %d required facts missing", missingFacts)
	}
	return MetricResult{
		Name:    "hallucination_safety",
		Value:   round1(score),
		Unit:    "%",
		Rating:  rating,
		Details: details,
	}
}

type VerbosityMetric struct{}

func (VerbosityMetric) Name() string { return "verbosity" }

func (VerbosityMetric) Compute(in MetricInput) MetricResult {
	wordCount := len(strings.Fields(in.Output))
	ideal := in.ExpectedLength
	if ideal <= 0 {
		if len(strings.Fields(in.Question)) < 10 {
			ideal = 50
		} else {
			ideal = 150
		}
	}
	ratio := float64(wordCount) / float64(ideal)
	rating := RatingBad
	switch {
	case ratio >= 0.5 && ratio <= 1.5:
		rating = RatingGood
	case ratio >= 0.3 && ratio <= 2.0:
		rating = RatingOK
	}
	return MetricResult{
		Name:    "verbosity",
		Value:   round2(ratio),
		Unit:    "x",
		Rating:  rating,
		Details: fmt.Sprintf("%d words (ratio: %.2fx ideal)", wordCount, ratio),
	}
}

// providerCostPer1K prices token usage per provider. Self-hosted inference
// is priced at zero.
var providerCostPer1K = map[string]float64{
	"ollama":     0.0,
	"gemini":     0.0,
	"groq":       0.0,
	"openrouter": 0.002,
	"openai":     0.01,
}

type CostMetric struct{}

func (CostMetric) Name() string { return "cost" }

func (CostMetric) Compute(in MetricInput) MetricResult {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		provider = "ollama"
	}
	costPer1K := providerCostPer1K[provider]
	totalTokens := in.InputTokens + in.OutputTokens
	cost := float64(totalTokens) / 1000 * costPer1K

	rating := RatingBad
	switch {
	case cost == 0:
		rating = RatingGood
	case cost < 0.01:
		rating = RatingOK
	}
	return MetricResult{
		Name:    "cost",
		Value:   round6(cost),
		Unit:    "$",
		Rating:  rating,
		Details: fmt.Sprintf("%d tokens × $%g/1K (%s)", totalTokens, costPer1K, provider),
	}
}

type MetricSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P95    float64 `json:"p95"`
}

// AggregateMetrics folds per-test metric lists into per-metric
// distributions. P95 is the value at floor(0.95*n) of the sorted list for
// n >= 5; for smaller samples it is defined to equal max, which is a
// small-sample fallback rather than true percentile semantics.
func AggregateMetrics(batches [][]MetricResult) map[string]MetricSummary {
	byName := map[string][]float64{}
	for _, results := range batches {
		for _, r := range results {
			byName[r.Name] = append(byName[r.Name], r.Value)
		}
	}

	summary := make(map[string]MetricSummary, len(byName))
	for name, values := range byName {
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		total := 0.0
		for _, v := range sorted {
			total += v
		}
		p95 := sorted[len(sorted)-1]
		if len(sorted) >= 5 {
			p95 = sorted[int(float64(len(sorted))*0.95)]
		}
		summary[name] = MetricSummary{
			Mean:   round2(total / float64(len(sorted))),
			Median: round2(median(sorted)),
			Min:    round2(sorted[0]),
			Max:    round2(sorted[len(sorted)-1]),
			P95:    round2(p95),
		}
	}
	return summary
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item)
		if name == "" {
			continue
		}
		out[name] = true
	}
	return out
}
