package judge

import (
	"encoding/json"
	"regexp"
	"strings"
)

// The judge is asked for {"score": N, "reason": "..."} but gives no format
// guarantee: the object may sit inside markdown fences or leading prose.
// We scan for the first brace-delimited candidate instead of decoding the
// reply as top-level JSON.
var inlineObjectPattern = regexp.MustCompile(`\{[^}]+\}`)

// ExtractVerdict pulls the first parsable score object out of a free-text
// judge reply. An unparsable reply degrades to a zero score carrying a
// truncated quote of the raw text; it never fails.
func ExtractVerdict(content string) Verdict {
	for _, candidate := range inlineObjectPattern.FindAllString(content, -1) {
		var parsed struct {
			Score  *float64 `json:"score"`
			Reason string   `json:"reason"`
		}
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			continue
		}
		if parsed.Score == nil {
			continue
		}
		score := clampScore(*parsed.Score)
		return Verdict{
			Score:      score,
			Normalized: score / 5,
			Reason:     strings.TrimSpace(parsed.Reason),
		}
	}
	return Verdict{
		Score:      0,
		Normalized: 0,
		Reason:     "Could not parse judge response: " + firstN(strings.TrimSpace(content), 100),
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 5 {
		return 5
	}
	return v
}
