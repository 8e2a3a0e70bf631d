package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultMinScore = 0.7

// LoadDataset reads a JSON array of test cases and normalizes defaults.
// A missing file, malformed JSON, empty dataset, or duplicate id is an
// error; dataset problems are fatal for the invoking command.
func LoadDataset(path string) ([]TestCase, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var cases []TestCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("dataset %s contains no test cases", path)
	}
	if err := NormalizeCases(cases); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return cases, nil
}

// NormalizeCases applies the dataset defaults in place and rejects cases
// with a missing or duplicate id. Every path that accepts test cases, file
// datasets and inline A/B cases alike, goes through it.
func NormalizeCases(cases []TestCase) error {
	seen := make(map[string]bool, len(cases))
	for i := range cases {
		tc := &cases[i]
		tc.ID = strings.TrimSpace(tc.ID)
		if tc.ID == "" {
			return fmt.Errorf("case %d has no id", i)
		}
		if seen[tc.ID] {
			return fmt.Errorf("duplicate test id %q", tc.ID)
		}
		seen[tc.ID] = true
		if strings.TrimSpace(tc.Category) == "" {
			tc.Category = "general"
		}
		if tc.MinScore <= 0 {
			tc.MinScore = defaultMinScore
		}
		if tc.EvalType == "" {
			tc.EvalType = EvalTypeQuality
		}
	}
	return nil
}

// FilterCases keeps the cases whose ids appear in the selection, in dataset
// order. An empty selection keeps everything.
func FilterCases(cases []TestCase, ids []string) []TestCase {
	if len(ids) == 0 {
		return cases
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[strings.TrimSpace(id)] = true
	}
	out := make([]TestCase, 0, len(cases))
	for _, tc := range cases {
		if wanted[tc.ID] {
			out = append(out, tc)
		}
	}
	return out
}
