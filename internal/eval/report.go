package eval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const reportTimeFormat = "20060102_150405"

// Report filename prefixes, one per run mode.
const (
	PrefixEval       = "eval"
	PrefixAB         = "ab"
	PrefixRegression = "regression"
	PrefixGolden     = "golden"
	PrefixRedTeam    = "redteam"
)

// SaveReport writes a report as indented JSON under dir with a timestamped
// name. Existing files are never overwritten: a same-second collision gets
// a numeric suffix instead.
func SaveReport(dir, prefix string, report any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	stamp := time.Now().UTC().Format(reportTimeFormat)
	base := fmt.Sprintf("%s_%s", prefix, stamp)
	for attempt := 0; ; attempt++ {
		name := base + ".json"
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d.json", base, attempt)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create report file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write report: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close report: %w", err)
		}
		return path, nil
	}
}

func LoadRun(path string) (Run, error) {
	var run Run
	data, err := os.ReadFile(path)
	if err != nil {
		return run, fmt.Errorf("read report %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &run); err != nil {
		return run, fmt.Errorf("decode report %s: %w", path, err)
	}
	return run, nil
}

// LatestReport returns the newest report path for a prefix, relying on the
// lexicographic order of the timestamped names.
func LatestReport(dir, prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*.json"))
	if err != nil {
		return "", fmt.Errorf("scan reports: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s reports under %s", prefix, dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// LatestReports returns the newest n report paths for a prefix, newest
// first.
func LatestReports(dir, prefix string, n int) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan reports: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}
