package eval

import (
	"fmt"
	"math"

	"evalgate/internal/agent"
)

func firstN(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func summarizeError(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := agent.IsAPIError(err); ok {
		return fmt.Sprintf("status=%d message=%s", apiErr.StatusCode, apiErr.Message)
	}
	return err.Error()
}
