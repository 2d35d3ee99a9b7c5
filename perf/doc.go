// Package perf runs small benchmarks against an HTTP/1.1 server from Go
// code. It is the library form of the bench command: one request is sent
// repeatedly, either one after another on a single connection or
// overlapped on several connections that share one readiness selector.
//
// # Quick Start
//
//	req := http.NewRequest("GET", "/health")
//	result, err := perf.Run(ctx, "http://localhost:8080", req, perf.Options{
//	    Requests:   1000,
//	    Clients:    8,
//	    Async:      true,
//	    Thresholds: []string{"p95 < 50ms", "error_rate < 0.01"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Requests: %d\n", result.Metrics.TotalRequests)
//	fmt.Printf("P95: %v\n", result.Metrics.Latency.P95)
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Thresholds
//
// A threshold is "metric op value". Duration metrics (min, max, avg, p50,
// p90, p95, p99) take a Go duration; error_rate, rps and count take a
// number. Operators are <, <=, >, >=, == and !=.
package perf
