package output

import (
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/netwire/internal/bench"
	"github.com/wesleyorama2/netwire/internal/http"
)

func testResponse() *Response {
	return &Response{
		Reply: &http.ReplyHeader{
			Proto:      "HTTP/1.1",
			Major:      1,
			Minor:      1,
			StatusCode: 200,
			StatusText: "OK",
			Header: http.NewHeader(
				"Content-Type", "application/json",
				"X-Rate-Limit", "100",
			),
			ContentLength: 52,
		},
		Body: []byte(`{"id":1,"name":"John Doe","email":"john@example.com"}`),
		Timing: http.TimingInfo{
			DNSLookupTime:       2 * time.Millisecond,
			TCPConnectTime:      3 * time.Millisecond,
			TimeToFirstByte:     40 * time.Millisecond,
			ContentTransferTime: 5 * time.Millisecond,
			TotalTime:           123 * time.Millisecond,
		},
	}
}

func TestFormatter_FormatRequest(t *testing.T) {
	formatter := NewFormatter(true, true)

	req := http.NewRequest("GET", "/users").
		WithHeader("Accept", "application/json").
		WithHeader("Authorization", "Bearer token123").
		WithQueryParam("page", "1").
		WithQueryParam("limit", "10")

	output := formatter.FormatRequest(req, "http://api.example.com")

	expectedParts := []string{
		"REQUEST: GET http://api.example.com/users?limit=10&page=1",
		"Headers:",
		"Accept: application/json",
		"Authorization: Bearer token123",
	}
	for _, part := range expectedParts {
		if !strings.Contains(output, part) {
			t.Errorf("Expected output to contain '%s', got: %s", part, output)
		}
	}
	if strings.Contains(output, "Body:") {
		t.Errorf("Expected no body section, got: %s", output)
	}
}

func TestFormatter_FormatRequestWithBody(t *testing.T) {
	formatter := NewFormatter(false, true)

	req := http.NewRequest("POST", "/users").WithBody(map[string]string{
		"name":  "John Doe",
		"email": "john@example.com",
	})
	output := formatter.FormatRequest(req, "http://api.example.com/")

	expectedParts := []string{
		"REQUEST: POST http://api.example.com/users",
		"Content-Type: application/json",
		"Body:",
		`"name": "John Doe"`,
		`"email": "john@example.com"`,
	}
	for _, part := range expectedParts {
		if !strings.Contains(output, part) {
			t.Errorf("Expected output to contain '%s', got: %s", part, output)
		}
	}
}

func TestFormatter_FormatResponse(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		contains    []string
		notContains []string
	}{
		{
			name:    "Non-verbose",
			verbose: false,
			contains: []string{
				"RESPONSE: 200 OK (123ms)",
				"Body:",
				`"name": "John Doe"`,
			},
			notContains: []string{"Timing:", "X-Rate-Limit"},
		},
		{
			name:    "Verbose",
			verbose: true,
			contains: []string{
				"RESPONSE: 200 OK (123ms)",
				"Timing:",
				"DNS Lookup:         2ms",
				"TCP Connection:     3ms",
				"Time to First Byte: 40ms",
				"Content Transfer:   5ms",
				"Total:              123ms",
				"Headers (HTTP/1.1):",
				"Content-Type: application/json",
				"X-Rate-Limit: 100",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := NewFormatter(tt.verbose, true).FormatResponse(testResponse())
			for _, part := range tt.contains {
				if !strings.Contains(output, part) {
					t.Errorf("Expected output to contain '%s', got: %s", part, output)
				}
			}
			for _, part := range tt.notContains {
				if strings.Contains(output, part) {
					t.Errorf("Expected output not to contain '%s', got: %s", part, output)
				}
			}
		})
	}
}

func TestFormatter_FormatResponsePlainBody(t *testing.T) {
	resp := testResponse()
	resp.Body = []byte("plain text body")
	resp.Extracted = map[string]string{"b": "2", "a": "1"}
	resp.SchemaChecked = true
	resp.SchemaErrors = []string{"/id: expected string"}

	output := NewFormatter(false, true).FormatResponse(resp)

	for _, part := range []string{
		"  Body:\nplain text body\n",
		"Extracted:\n    a = 1\n    b = 2\n",
		"Schema: ✗ 1 violation(s)",
		"/id: expected string",
	} {
		if !strings.Contains(output, part) {
			t.Errorf("Expected output to contain %q, got: %s", part, output)
		}
	}

	resp.SchemaErrors = nil
	if output := NewFormatter(false, true).FormatResponse(resp); !strings.Contains(output, "Schema: ✓ valid") {
		t.Errorf("Expected a valid schema line, got: %s", output)
	}
}

func TestFormatter_ColoredBody(t *testing.T) {
	output := NewFormatter(false, false).FormatResponse(testResponse())
	if !strings.Contains(output, "\x1b[") {
		t.Errorf("Expected ANSI colors in output, got: %q", output)
	}
}

func TestFormatter_FormatBench(t *testing.T) {
	s := bench.Snapshot{
		TotalRequests:   10,
		SuccessRequests: 9,
		FailedRequests:  1,
		TotalBytes:      500,
		RPS:             25,
		ErrorRate:       0.1,
		Elapsed:         400 * time.Millisecond,
		Latency: bench.LatencyStats{
			Min: time.Millisecond,
			P50: 5 * time.Millisecond,
			P99: 20 * time.Millisecond,
			Max: 21 * time.Millisecond,
		},
		Statuses: []bench.StatusCount{{Code: 200, Count: 9}, {Code: 503, Count: 1}},
		Thresholds: []bench.ThresholdResult{
			{Expression: "p99 < 50ms", Passed: true, Value: "20ms"},
			{Expression: "error_rate < 0.01", Value: "0.1000", Message: "error_rate is 0.1000"},
		},
	}

	output := NewFormatter(false, true).FormatBench(s)
	for _, part := range []string{
		"⚠ BENCH: 10 requests in 400ms (25.0 req/s)",
		"Succeeded: 9",
		"Failed:    1 (10.0%)",
		"Bytes:     500",
		"P50:  5ms",
		"P99:  20ms",
		"200: 9",
		"503: 1",
		"Thresholds:",
		"✓ p99 < 50ms (20ms)",
		"✗ error_rate < 0.01 (0.1000)",
	} {
		if !strings.Contains(output, part) {
			t.Errorf("Expected output to contain %q, got: %s", part, output)
		}
	}
}
