package judge

import (
	"strings"
	"testing"
)

func TestExtractVerdictPlainObject(t *testing.T) {
	verdict := ExtractVerdict(`{"score": 4, "reason": "mostly on point"}`)
	if verdict.Score != 4 {
		t.Fatalf("expected score 4, got %v", verdict.Score)
	}
	if verdict.Normalized != 0.8 {
		t.Fatalf("expected normalized 0.8, got %v", verdict.Normalized)
	}
	if verdict.Reason != "mostly on point" {
		t.Fatalf("unexpected reason: %q", verdict.Reason)
	}
}

func TestExtractVerdictEmbeddedInProse(t *testing.T) {
	content := "Sure, here is my evaluation:\n```json\n{\"score\": 5, \"reason\": \"direct and complete\"}\n```\nLet me know if you need more."
	verdict := ExtractVerdict(content)
	if verdict.Score != 5 {
		t.Fatalf("expected score 5, got %v", verdict.Score)
	}
}

func TestExtractVerdictSkipsNonScoreObjects(t *testing.T) {
	content := `{"note": "thinking"} then finally {"score": 3, "reason": "partial"}`
	verdict := ExtractVerdict(content)
	if verdict.Score != 3 {
		t.Fatalf("expected score 3, got %v", verdict.Score)
	}
}

func TestExtractVerdictUnparsableDegradesToZero(t *testing.T) {
	long := strings.Repeat("the model rambled on without any structure ", 10)
	verdict := ExtractVerdict(long)
	if verdict.Score != 0 || verdict.Normalized != 0 {
		t.Fatalf("expected zero verdict, got %+v", verdict)
	}
	if !strings.HasPrefix(verdict.Reason, "Could not parse judge response: ") {
		t.Fatalf("unexpected reason: %q", verdict.Reason)
	}
	if len(verdict.Reason) > len("Could not parse judge response: ")+110 {
		t.Fatalf("reason should quote a truncated prefix, got %d chars", len(verdict.Reason))
	}
}

func TestExtractVerdictClampsOutOfRangeScore(t *testing.T) {
	if v := ExtractVerdict(`{"score": 9, "reason": "overenthusiastic"}`); v.Score != 5 {
		t.Fatalf("expected clamp to 5, got %v", v.Score)
	}
	if v := ExtractVerdict(`{"score": -2, "reason": "spiteful"}`); v.Score != 0 {
		t.Fatalf("expected clamp to 0, got %v", v.Score)
	}
}

func TestPromptsCarryRubricAndInputs(t *testing.T) {
	prompt := RelevancePrompt("What is the capital of France?", "Paris.")
	for _, want := range []string{"What is the capital of France?", "Paris.", "scale of 1-5", `{"score": <1-5>`} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("relevance prompt missing %q", want)
		}
	}
	grounded := FaithfulnessPrompt("q", "a", []string{"doc one", "doc two"})
	if !strings.Contains(grounded, "doc one\n---\ndoc two") {
		t.Fatalf("faithfulness prompt should join context with separators")
	}
}
