package bench

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Recorder collects per-request results using an HDR histogram.
//
// Recorder is safe for concurrent use. Counters use atomic operations and
// the histogram is protected by a mutex.
type Recorder struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	statusMu sync.Mutex
	statuses map[int]int64

	startTime time.Time
	config    RecorderConfig
}

// RecorderConfig contains configuration for the recorder.
type RecorderConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultRecorderConfig returns the default configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// NewRecorder creates a recorder with the default configuration.
func NewRecorder() *Recorder {
	return NewRecorderWithConfig(DefaultRecorderConfig())
}

// NewRecorderWithConfig creates a recorder with a custom configuration.
func NewRecorderWithConfig(config RecorderConfig) *Recorder {
	return &Recorder{
		latencyHist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		statuses:    make(map[int]int64),
		startTime:   time.Now(),
		config:      config,
	}
}

// Record records one finished request. A request succeeds when it got a
// reply without error and the status is below 400. status is 0 when no
// reply header arrived.
func (r *Recorder) Record(duration time.Duration, status int, bytes int64, err error) {
	latencyMicros := duration.Microseconds()
	if latencyMicros < r.config.HistogramMin {
		latencyMicros = r.config.HistogramMin
	}
	if latencyMicros > r.config.HistogramMax {
		latencyMicros = r.config.HistogramMax
	}

	r.latencyHistMu.Lock()
	r.latencyHist.RecordValue(latencyMicros)
	r.latencyHistMu.Unlock()

	if status > 0 {
		r.statusMu.Lock()
		r.statuses[status]++
		r.statusMu.Unlock()
	}

	r.totalRequests.Add(1)
	r.totalBytes.Add(bytes)
	if err == nil && status > 0 && status < 400 {
		r.successRequests.Add(1)
	} else {
		r.failedRequests.Add(1)
	}
}

// Snapshot returns a point-in-time view of everything recorded.
func (r *Recorder) Snapshot() Snapshot {
	r.latencyHistMu.Lock()
	latency := LatencyStats{
		Min:    time.Duration(r.latencyHist.Min()) * time.Microsecond,
		Max:    time.Duration(r.latencyHist.Max()) * time.Microsecond,
		Mean:   time.Duration(r.latencyHist.Mean()) * time.Microsecond,
		StdDev: time.Duration(r.latencyHist.StdDev()) * time.Microsecond,
		P50:    time.Duration(r.latencyHist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(r.latencyHist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(r.latencyHist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(r.latencyHist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  r.latencyHist.TotalCount(),
	}
	r.latencyHistMu.Unlock()

	r.statusMu.Lock()
	statuses := make([]StatusCount, 0, len(r.statuses))
	for code, n := range r.statuses {
		statuses = append(statuses, StatusCount{Code: code, Count: n})
	}
	r.statusMu.Unlock()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Code < statuses[j].Code })

	elapsed := time.Since(r.startTime)
	total := r.totalRequests.Load()
	failed := r.failedRequests.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(total) / elapsed.Seconds()
	}
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return Snapshot{
		TotalRequests:   total,
		SuccessRequests: r.successRequests.Load(),
		FailedRequests:  failed,
		TotalBytes:      r.totalBytes.Load(),
		Latency:         latency,
		RPS:             rps,
		ErrorRate:       errorRate,
		Statuses:        statuses,
		Elapsed:         elapsed,
	}
}

// Reset clears everything recorded and restarts the clock.
func (r *Recorder) Reset() {
	r.latencyHistMu.Lock()
	r.latencyHist.Reset()
	r.latencyHistMu.Unlock()

	r.statusMu.Lock()
	r.statuses = make(map[int]int64)
	r.statusMu.Unlock()

	r.totalRequests.Store(0)
	r.successRequests.Store(0)
	r.failedRequests.Store(0)
	r.totalBytes.Store(0)
	r.startTime = time.Now()
}

// Snapshot contains a point-in-time view of a run.
type Snapshot struct {
	TotalRequests   int64         `json:"totalRequests" yaml:"totalRequests"`
	SuccessRequests int64         `json:"successRequests" yaml:"successRequests"`
	FailedRequests  int64         `json:"failedRequests" yaml:"failedRequests"`
	TotalBytes      int64         `json:"totalBytes" yaml:"totalBytes"`
	Latency         LatencyStats  `json:"latency" yaml:"latency"`
	RPS             float64       `json:"rps" yaml:"rps"`
	ErrorRate       float64       `json:"errorRate" yaml:"errorRate"`
	Statuses        []StatusCount `json:"statuses,omitempty" yaml:"statuses,omitempty"`
	Elapsed         time.Duration `json:"elapsed" yaml:"elapsed"`

	// Thresholds holds threshold outcomes when the run was checked
	// against any.
	Thresholds []ThresholdResult `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// StatusCount is the number of replies seen with one status code.
type StatusCount struct {
	Code  int   `json:"code" yaml:"code"`
	Count int64 `json:"count" yaml:"count"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min" yaml:"min"`
	Max    time.Duration `json:"max" yaml:"max"`
	Mean   time.Duration `json:"mean" yaml:"mean"`
	StdDev time.Duration `json:"stdDev" yaml:"stdDev"`
	P50    time.Duration `json:"p50" yaml:"p50"`
	P90    time.Duration `json:"p90" yaml:"p90"`
	P95    time.Duration `json:"p95" yaml:"p95"`
	P99    time.Duration `json:"p99" yaml:"p99"`
	Count  int64         `json:"count" yaml:"count"`
}
