package perf

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wesleyorama2/netwire/http"
	"github.com/wesleyorama2/netwire/internal/bench"
	ihttp "github.com/wesleyorama2/netwire/internal/http"
)

// Snapshot is the aggregated result of a run.
type Snapshot = bench.Snapshot

// LatencyStats summarizes request latencies.
type LatencyStats = bench.LatencyStats

// ThresholdResult is the outcome of one threshold.
type ThresholdResult = bench.ThresholdResult

// Options controls a run.
type Options struct {
	// Requests is the number of requests to send. Zero means 1.
	Requests int

	// Clients is the number of connections of an async run. Zero means 1.
	Clients int

	// Rate limits request starts per second. Zero means no limit.
	Rate float64

	// Async overlaps requests on Clients connections.
	Async bool

	// Timeout and ConnectTimeout bound each request. Zero means no limit.
	Timeout        time.Duration
	ConnectTimeout time.Duration

	// Thresholds are checked against the result, e.g. "p95 < 500ms".
	Thresholds []string

	// ClientOptions are applied to every connection, e.g. http.WithAuth.
	ClientOptions []http.Option

	Logger *slog.Logger
}

// TestResult contains the results of a run.
type TestResult struct {
	// StartTime is when the run started
	StartTime time.Time `json:"startTime"`

	// Duration is the wall time of the run
	Duration time.Duration `json:"duration"`

	// Metrics contains the aggregated metrics
	Metrics Snapshot `json:"metrics"`

	// Passed indicates whether all thresholds passed
	Passed bool `json:"passed"`

	// Thresholds contains individual threshold results
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// Run sends req to the server at baseURL as often as opts says and
// returns the aggregated result. req is copied for every request. A run cut
// short by ctx returns what was recorded so far together with ctx's error.
func Run(ctx context.Context, baseURL string, req *http.Request, opts Options) (*TestResult, error) {
	if req == nil {
		return nil, errors.New("perf: nil request")
	}
	thresholds, err := bench.ParseThresholds(opts.Thresholds)
	if err != nil {
		return nil, err
	}

	requests := max(opts.Requests, 1)
	clients := max(opts.Clients, 1)
	timeout, connect := waitTime(opts.Timeout), waitTime(opts.ConnectTimeout)

	clientOpts := append([]ihttp.Option{
		ihttp.WithTimeout(timeout),
		ihttp.WithConnectTimeout(connect),
		ihttp.WithLogger(opts.Logger),
	}, opts.ClientOptions...)

	newClient := func(extra ...ihttp.Option) (*ihttp.Client, error) {
		return ihttp.NewClientURL(baseURL, append(append([]ihttp.Option(nil), clientOpts...), extra...)...)
	}
	newRequest := func() *ihttp.Request {
		return req.Clone()
	}

	runner := bench.NewRunner(newClient, newRequest,
		bench.WithRate(opts.Rate),
		bench.WithTimeouts(timeout, connect),
		bench.WithLogger(opts.Logger),
	)

	start := time.Now()
	snap, err := runner.Run(ctx, requests, clients, opts.Async)
	if err != nil {
		return nil, err
	}

	results, passed := bench.EvaluateThresholds(thresholds, snap)
	snap.Thresholds = results
	result := &TestResult{
		StartTime:  start,
		Duration:   time.Since(start),
		Metrics:    snap,
		Passed:     passed,
		Thresholds: results,
	}
	return result, ctx.Err()
}

func waitTime(d time.Duration) time.Duration {
	if d <= 0 {
		return ihttp.WaitInfinite
	}
	return d
}
