package eval

import (
	"testing"
)

func TestLatencyMetricRatings(t *testing.T) {
	cases := []struct {
		ms   int64
		want Rating
	}{
		{500, RatingGood},
		{1999, RatingGood},
		{2000, RatingOK},
		{4999, RatingOK},
		{5000, RatingBad},
	}
	for _, tc := range cases {
		got := LatencyMetric{}.Compute(MetricInput{LatencyMS: tc.ms})
		if got.Rating != tc.want {
			t.Fatalf("latency %dms: rating = %s, want %s", tc.ms, got.Rating, tc.want)
		}
		if got.Value != float64(tc.ms) {
			t.Fatalf("latency %dms: value = %v", tc.ms, got.Value)
		}
	}
}

func TestToolEfficiencyMetric(t *testing.T) {
	cases := []struct {
		name       string
		expected   []string
		used       []string
		wantValue  float64
		wantRating Rating
	}{
		{"exact match", []string{"get_weather"}, []string{"get_weather"}, 100, RatingGood},
		{"missed tool", []string{"get_weather"}, nil, 0, RatingBad},
		{"none needed none used", nil, nil, 100, RatingGood},
		{"unexpected use", nil, []string{"get_weather"}, 50, RatingOK},
		{"one correct one extra", []string{"search", "calc"}, []string{"search", "browse"}, 25, RatingBad},
	}
	for _, tc := range cases {
		got := ToolEfficiencyMetric{}.Compute(MetricInput{ExpectedTools: tc.expected, ToolsUsed: tc.used})
		if got.Value != tc.wantValue {
			t.Fatalf("%s: value = %v, want %v", tc.name, got.Value, tc.wantValue)
		}
		if got.Rating != tc.wantRating {
			t.Fatalf("%s: rating = %s, want %s", tc.name, got.Rating, tc.wantRating)
		}
	}
}

func TestHallucinationMetricSignals(t *testing.T) {
	clean := HallucinationMetric{}.Compute(MetricInput{Output: "The capital of France is Paris."})
	if clean.Value != 100 || clean.Rating != RatingGood {
		t.Fatalf("clean output scored %v (%s)", clean.Value, clean.Rating)
	}

	dated := HallucinationMetric{}.Compute(MetricInput{
		Output: "The treaty was signed on March 15, 2021 in Vienna.",
	})
	if dated.Value != 80 {
		t.Fatalf("unsourced date scored %v, want 80", dated.Value)
	}

	sourced := HallucinationMetric{}.Compute(MetricInput{
		Output:         "The treaty was signed on March 15, 2021 in Vienna.",
		ContextHasDate: true,
	})
	if sourced.Value != 100 {
		t.Fatalf("sourced date scored %v, want 100", sourced.Value)
	}

	linked := HallucinationMetric{}.Compute(MetricInput{
		Output: "See https://example.com/report for details.",
	})
	if linked.Value != 80 {
		t.Fatalf("url without web tool scored %v, want 80", linked.Value)
	}

	withWeb := HallucinationMetric{}.Compute(MetricInput{
		Output:     "See https://example.com/report for details.",
		HasWebTool: true,
	})
	if withWeb.Value != 100 {
		t.Fatalf("url with web tool scored %v, want 100", withWeb.Value)
	}

	stale := HallucinationMetric{}.Compute(MetricInput{
		Output: "As of January 2024 the population was stable.",
	})
	if stale.Value != 80 {
		t.Fatalf("temporal claim scored %v, want 80", stale.Value)
	}

	missing := HallucinationMetric{}.Compute(MetricInput{
		Output:        "Paris is a large city.",
		RequiredFacts: []string{"France", "Seine"},
	})
	if missing.Value != 40 {
		t.Fatalf("two missing facts scored %v, want 40", missing.Value)
	}
	if missing.Rating != RatingBad {
		t.Fatalf("two missing facts rated %s, want bad", missing.Rating)
	}
}

func TestHallucinationMetricFloor(t *testing.T) {
	got := HallucinationMetric{}.Compute(MetricInput{
		Output:        "As of June 2023, see https://a.example and https://b.example. Signed May 1, 2020.",
		RequiredFacts: []string{"alpha", "beta", "gamma"},
	})
	if got.Value != 0 {
		t.Fatalf("stacked penalties scored %v, want floor of 0", got.Value)
	}
}

func TestVerbosityMetric(t *testing.T) {
	shortQuestion := "What is Go?"
	answer50 := repeatWords("word", 50)

	ideal := VerbosityMetric{}.Compute(MetricInput{Question: shortQuestion, Output: answer50})
	if ideal.Value != 1.0 || ideal.Rating != RatingGood {
		t.Fatalf("50-word answer to short question = %v (%s)", ideal.Value, ideal.Rating)
	}

	rambling := VerbosityMetric{}.Compute(MetricInput{Question: shortQuestion, Output: repeatWords("word", 120)})
	if rambling.Rating != RatingBad {
		t.Fatalf("2.4x ideal rated %s, want bad", rambling.Rating)
	}

	explicit := VerbosityMetric{}.Compute(MetricInput{
		Question:       shortQuestion,
		Output:         repeatWords("word", 200),
		ExpectedLength: 200,
	})
	if explicit.Value != 1.0 || explicit.Rating != RatingGood {
		t.Fatalf("expected_length override = %v (%s)", explicit.Value, explicit.Rating)
	}
}

func TestCostMetric(t *testing.T) {
	free := CostMetric{}.Compute(MetricInput{Provider: "ollama", InputTokens: 500, OutputTokens: 500})
	if free.Value != 0 || free.Rating != RatingGood {
		t.Fatalf("ollama cost = %v (%s)", free.Value, free.Rating)
	}

	cheap := CostMetric{}.Compute(MetricInput{Provider: "openrouter", InputTokens: 1000, OutputTokens: 1000})
	if cheap.Value != 0.004 || cheap.Rating != RatingOK {
		t.Fatalf("openrouter cost = %v (%s)", cheap.Value, cheap.Rating)
	}

	pricey := CostMetric{}.Compute(MetricInput{Provider: "openai", InputTokens: 1000, OutputTokens: 1000})
	if pricey.Value != 0.02 || pricey.Rating != RatingBad {
		t.Fatalf("openai cost = %v (%s)", pricey.Value, pricey.Rating)
	}
}

func TestResolveMetricSelection(t *testing.T) {
	if got := ResolveMetricSelection(""); len(got) != 5 {
		t.Fatalf("empty selection resolved to %v", got)
	}
	if got := ResolveMetricSelection("all"); len(got) != 5 {
		t.Fatalf("all resolved to %v", got)
	}
	got := ResolveMetricSelection(" Latency , cost ")
	if len(got) != 2 || got[0] != "latency" || got[1] != "cost" {
		t.Fatalf("selection resolved to %v", got)
	}
}

func TestComputeAllSkipsUnknown(t *testing.T) {
	results := ComputeAll(MetricInput{}, []string{"latency", "bogus", "cost"})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Name != "latency" || results[1].Name != "cost" {
		t.Fatalf("unexpected order: %s, %s", results[0].Name, results[1].Name)
	}
}

func TestAggregateMetrics(t *testing.T) {
	var batches [][]MetricResult
	for _, v := range []float64{100, 200, 300, 400, 1000} {
		batches = append(batches, []MetricResult{{Name: "latency", Value: v}})
	}
	summary := AggregateMetrics(batches)
	lat, ok := summary["latency"]
	if !ok {
		t.Fatal("no latency summary")
	}
	if lat.Mean != 400 {
		t.Fatalf("mean = %v, want 400", lat.Mean)
	}
	if lat.Median != 300 {
		t.Fatalf("median = %v, want 300", lat.Median)
	}
	if lat.Min != 100 || lat.Max != 1000 {
		t.Fatalf("min/max = %v/%v", lat.Min, lat.Max)
	}
	if lat.P95 != 1000 {
		t.Fatalf("p95 = %v, want 1000", lat.P95)
	}
}

func TestAggregateMetricsSmallSampleP95(t *testing.T) {
	batches := [][]MetricResult{
		{{Name: "cost", Value: 0.01}},
		{{Name: "cost", Value: 0.05}},
	}
	summary := AggregateMetrics(batches)
	if got := summary["cost"].P95; got != 0.05 {
		t.Fatalf("small-sample p95 = %v, want max 0.05", got)
	}
}

func repeatWords(word string, n int) string {
	out := word
	for i := 1; i < n; i++ {
		out += " " + word
	}
	return out
}
