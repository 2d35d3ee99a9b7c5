package bench

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Threshold is a pass/fail condition on a snapshot, written as
// "metric op value": "p95 < 500ms", "error_rate <= 0.01", "rps > 100" or
// "count >= 1000".
type Threshold struct {
	Expression string
	Metric     string
	Op         string
	value      float64
	duration   bool
}

// ThresholdResult is the outcome of one threshold.
type ThresholdResult struct {
	Expression string `json:"expression" yaml:"expression"`
	Passed     bool   `json:"passed" yaml:"passed"`
	Value      string `json:"value" yaml:"value"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*(<=|>=|==|!=|<|>)\s*(\S+)$`)

var durationMetrics = map[string]bool{
	"min": true, "max": true, "avg": true,
	"p50": true, "p90": true, "p95": true, "p99": true,
}

// ParseThreshold parses a threshold expression.
func ParseThreshold(expr string) (Threshold, error) {
	expr = strings.TrimSpace(expr)
	m := thresholdPattern.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q, want 'metric op value'", expr)
	}
	t := Threshold{Expression: expr, Metric: m[1], Op: m[2]}

	switch {
	case durationMetrics[t.Metric]:
		d, err := time.ParseDuration(m[3])
		if err != nil {
			return Threshold{}, fmt.Errorf("invalid threshold %q: %w", expr, err)
		}
		t.value = float64(d)
		t.duration = true
	case t.Metric == "error_rate", t.Metric == "rps", t.Metric == "count":
		v, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return Threshold{}, fmt.Errorf("invalid threshold %q: %w", expr, err)
		}
		t.value = v
	default:
		return Threshold{}, fmt.Errorf("invalid threshold %q: unknown metric %s", expr, t.Metric)
	}
	return t, nil
}

// ParseThresholds parses every expression, stopping at the first error.
func ParseThresholds(exprs []string) ([]Threshold, error) {
	out := make([]Threshold, 0, len(exprs))
	for _, e := range exprs {
		t, err := ParseThreshold(e)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Evaluate checks the threshold against s.
func (t Threshold) Evaluate(s Snapshot) ThresholdResult {
	var actual float64
	var shown string

	if t.duration {
		var d time.Duration
		switch t.Metric {
		case "min":
			d = s.Latency.Min
		case "max":
			d = s.Latency.Max
		case "avg":
			d = s.Latency.Mean
		case "p50":
			d = s.Latency.P50
		case "p90":
			d = s.Latency.P90
		case "p95":
			d = s.Latency.P95
		case "p99":
			d = s.Latency.P99
		}
		actual, shown = float64(d), d.String()
	} else {
		switch t.Metric {
		case "error_rate":
			actual, shown = s.ErrorRate, fmt.Sprintf("%.4f", s.ErrorRate)
		case "rps":
			actual, shown = s.RPS, fmt.Sprintf("%.2f", s.RPS)
		case "count":
			actual, shown = float64(s.TotalRequests), strconv.FormatInt(s.TotalRequests, 10)
		}
	}

	r := ThresholdResult{
		Expression: t.Expression,
		Passed:     compare(actual, t.Op, t.value),
		Value:      shown,
	}
	if !r.Passed {
		r.Message = fmt.Sprintf("%s is %s", t.Metric, shown)
	}
	return r
}

// EvaluateThresholds checks every threshold and reports whether all passed.
func EvaluateThresholds(ts []Threshold, s Snapshot) ([]ThresholdResult, bool) {
	if len(ts) == 0 {
		return nil, true
	}
	results := make([]ThresholdResult, len(ts))
	passed := true
	for i, t := range ts {
		results[i] = t.Evaluate(s)
		passed = passed && results[i].Passed
	}
	return results, passed
}

func compare(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	}
	return false
}
