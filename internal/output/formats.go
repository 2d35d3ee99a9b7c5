package output

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/netwire/internal/bench"
	"github.com/wesleyorama2/netwire/internal/http"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OutputFormat represents the available output formats
type OutputFormat string

const (
	// FormatText is the default human-readable text format
	FormatText OutputFormat = "text"
	// FormatJSON outputs in JSON format
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs in YAML format
	FormatYAML OutputFormat = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(name)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", name)
}

// FormatProvider is an interface for different output formatters
type FormatProvider interface {
	FormatRequest(req *http.Request, baseURL string) string
	FormatResponse(resp *Response) string
	FormatBench(s bench.Snapshot) string
}

// Response is a finished reply together with what was derived from it.
type Response struct {
	Reply     *http.ReplyHeader
	Body      []byte
	Timing    http.TimingInfo
	Extracted map[string]string
	// SchemaChecked is set when the body was validated; SchemaErrors then
	// lists the violations, if any.
	SchemaChecked bool
	SchemaErrors  []string
}

// RequestData represents the structured data of an HTTP request
type RequestData struct {
	Method    string            `json:"method" yaml:"method"`
	URL       string            `json:"url" yaml:"url"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body      interface{}       `json:"body,omitempty" yaml:"body,omitempty"`
	Timestamp string            `json:"timestamp" yaml:"timestamp"`
}

// TimingData represents detailed timing information for an HTTP request
type TimingData struct {
	DNSLookup       int64 `json:"dnsLookupMs" yaml:"dnsLookupMs"`
	TCPConnection   int64 `json:"tcpConnectionMs" yaml:"tcpConnectionMs"`
	TimeToFirstByte int64 `json:"timeToFirstByteMs" yaml:"timeToFirstByteMs"`
	ContentTransfer int64 `json:"contentTransferMs" yaml:"contentTransferMs"`
	Total           int64 `json:"totalMs" yaml:"totalMs"`
}

// ResponseData represents the structured data of an HTTP response
type ResponseData struct {
	StatusCode    int               `json:"statusCode" yaml:"statusCode"`
	Status        string            `json:"status" yaml:"status"`
	Proto         string            `json:"proto" yaml:"proto"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body          interface{}       `json:"body,omitempty" yaml:"body,omitempty"`
	ContentLength int64             `json:"contentLength" yaml:"contentLength"`
	Timing        TimingData        `json:"timing" yaml:"timing"`
	Extracted     map[string]string `json:"extracted,omitempty" yaml:"extracted,omitempty"`
	SchemaValid   *bool             `json:"schemaValid,omitempty" yaml:"schemaValid,omitempty"`
	SchemaErrors  []string          `json:"schemaErrors,omitempty" yaml:"schemaErrors,omitempty"`
	Timestamp     string            `json:"timestamp" yaml:"timestamp"`
}

// LatencyData is a latency summary in milliseconds.
type LatencyData struct {
	Min  float64 `json:"minMs" yaml:"minMs"`
	Mean float64 `json:"meanMs" yaml:"meanMs"`
	Max  float64 `json:"maxMs" yaml:"maxMs"`
	P50  float64 `json:"p50Ms" yaml:"p50Ms"`
	P90  float64 `json:"p90Ms" yaml:"p90Ms"`
	P95  float64 `json:"p95Ms" yaml:"p95Ms"`
	P99  float64 `json:"p99Ms" yaml:"p99Ms"`
}

// BenchData represents the structured result of a bench run
type BenchData struct {
	TotalRequests   int64         `json:"totalRequests" yaml:"totalRequests"`
	SuccessRequests int64         `json:"successRequests" yaml:"successRequests"`
	FailedRequests  int64         `json:"failedRequests" yaml:"failedRequests"`
	TotalBytes      int64         `json:"totalBytes" yaml:"totalBytes"`
	RPS             float64       `json:"rps" yaml:"rps"`
	ErrorRate       float64       `json:"errorRate" yaml:"errorRate"`
	Elapsed         int64         `json:"elapsedMs" yaml:"elapsedMs"`
	Latency         LatencyData   `json:"latency" yaml:"latency"`
	Statuses        map[int]int64 `json:"statuses,omitempty" yaml:"statuses,omitempty"`

	Thresholds []bench.ThresholdResult `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

func newRequestData(req *http.Request, baseURL string) RequestData {
	return RequestData{
		Method:    req.Method,
		URL:       joinURL(baseURL, req.RequestURI()),
		Headers:   flatten(req.Header.Map()),
		Body:      decodeBody(req.Body),
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func newResponseData(resp *Response) ResponseData {
	data := ResponseData{
		StatusCode:    resp.Reply.StatusCode,
		Status:        resp.Reply.Status(),
		Proto:         resp.Reply.Proto,
		Headers:       flatten(resp.Reply.Header.Map()),
		Body:          decodeBody(resp.Body),
		ContentLength: int64(len(resp.Body)),
		Timing:        newTimingData(resp.Timing),
		Extracted:     resp.Extracted,
		Timestamp:     time.Now().Format(time.RFC3339),
	}
	if resp.SchemaChecked {
		valid := len(resp.SchemaErrors) == 0
		data.SchemaValid = &valid
		data.SchemaErrors = resp.SchemaErrors
	}
	return data
}

func newTimingData(t http.TimingInfo) TimingData {
	return TimingData{
		DNSLookup:       t.GetDNSLookupTimeMillis(),
		TCPConnection:   t.GetTCPConnectTimeMillis(),
		TimeToFirstByte: t.GetTimeToFirstByteMillis(),
		ContentTransfer: t.GetContentTransferTimeMillis(),
		Total:           t.GetTotalTimeMillis(),
	}
}

func newBenchData(s bench.Snapshot) BenchData {
	data := BenchData{
		TotalRequests:   s.TotalRequests,
		SuccessRequests: s.SuccessRequests,
		FailedRequests:  s.FailedRequests,
		TotalBytes:      s.TotalBytes,
		RPS:             s.RPS,
		ErrorRate:       s.ErrorRate,
		Elapsed:         s.Elapsed.Milliseconds(),
		Latency: LatencyData{
			Min:  millis(s.Latency.Min),
			Mean: millis(s.Latency.Mean),
			Max:  millis(s.Latency.Max),
			P50:  millis(s.Latency.P50),
			P90:  millis(s.Latency.P90),
			P95:  millis(s.Latency.P95),
			P99:  millis(s.Latency.P99),
		},
		Thresholds: s.Thresholds,
	}
	if len(s.Statuses) > 0 {
		data.Statuses = make(map[int]int64, len(s.Statuses))
		for _, sc := range s.Statuses {
			data.Statuses[sc.Code] = sc.Count
		}
	}
	return data
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// flatten joins repeated header values with ", ".
func flatten(m map[string][]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// decodeBody returns JSON bodies as decoded values and anything else as a
// string.
func decodeBody(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	if gjson.ValidBytes(body) {
		var v interface{}
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
	}
	return string(body)
}

func joinURL(baseURL, uri string) string {
	if baseURL == "" {
		return uri
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Verbose bool
	Pretty  bool
}

func (f *JSONFormatter) marshal(v interface{}, what string) string {
	var out []byte
	var err error
	if f.Pretty {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Sprintf(`{"error":"Failed to marshal %s: %s"}`, what, err)
	}
	return string(out)
}

// FormatRequest formats a request as JSON
func (f *JSONFormatter) FormatRequest(req *http.Request, baseURL string) string {
	return f.marshal(newRequestData(req, baseURL), "request")
}

// FormatResponse formats a response as JSON
func (f *JSONFormatter) FormatResponse(resp *Response) string {
	data := newResponseData(resp)
	if !f.Verbose {
		data.Headers = nil
	}
	return f.marshal(data, "response")
}

// FormatBench formats a bench result as JSON
func (f *JSONFormatter) FormatBench(s bench.Snapshot) string {
	return f.marshal(newBenchData(s), "bench result")
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	Verbose bool
}

func (f *YAMLFormatter) marshal(v interface{}, what string) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: Failed to marshal %s: %s\n", what, err)
	}
	return string(out)
}

// FormatRequest formats a request as YAML
func (f *YAMLFormatter) FormatRequest(req *http.Request, baseURL string) string {
	return f.marshal(newRequestData(req, baseURL), "request")
}

// FormatResponse formats a response as YAML
func (f *YAMLFormatter) FormatResponse(resp *Response) string {
	data := newResponseData(resp)
	if !f.Verbose {
		data.Headers = nil
	}
	return f.marshal(data, "response")
}

// FormatBench formats a bench result as YAML
func (f *YAMLFormatter) FormatBench(s bench.Snapshot) string {
	return f.marshal(newBenchData(s), "bench result")
}

// GetFormatter returns the formatter for format.
func GetFormatter(format OutputFormat, verbose bool, noColor bool) FormatProvider {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Verbose: verbose, Pretty: true}
	case FormatYAML:
		return &YAMLFormatter{Verbose: verbose}
	default:
		return NewFormatter(verbose, noColor)
	}
}
