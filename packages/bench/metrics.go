package bench

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Metrics collects per-iteration encode timings
type Metrics struct {
	mu sync.Mutex

	total  atomic.Int64
	errors atomic.Int64
	bytes  atomic.Int64

	// Encode time in microseconds
	histogram *hdrhistogram.Histogram

	startTime time.Time
	endTime   time.Time
}

// NewMetrics creates a new Metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		// 1us to 60s, 3 significant digits
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
	}
}

// Start marks the beginning of the run
func (m *Metrics) Start() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}

// Stop marks the end of the run
func (m *Metrics) Stop() {
	m.mu.Lock()
	m.endTime = time.Now()
	m.mu.Unlock()
}

// Record records one iteration. Failed iterations count toward the error
// total but not the histogram.
func (m *Metrics) Record(duration time.Duration, written int64, err error) {
	m.total.Add(1)
	m.bytes.Add(written)
	if err != nil {
		m.errors.Add(1)
		return
	}

	latencyUs := duration.Microseconds()
	if latencyUs < minLatencyUs {
		latencyUs = minLatencyUs
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}

	m.mu.Lock()
	_ = m.histogram.RecordValue(latencyUs)
	m.mu.Unlock()
}

// Summary is the result of a run
type Summary struct {
	Duration   time.Duration
	Iterations int64
	Errors     int64
	Bytes      int64

	// Calculated rates
	IterationsPerSecond float64
	BytesPerSecond      float64
	ErrorRate           float64

	// Encode time percentiles
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	StdDev time.Duration
}

// GetSummary returns the metrics summary
func (m *Metrics) GetSummary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	total := m.total.Load()
	errors := m.errors.Load()
	written := m.bytes.Load()

	s := &Summary{
		Duration:   duration,
		Iterations: total,
		Errors:     errors,
		Bytes:      written,
		P50:        quantile(m.histogram, 50),
		P95:        quantile(m.histogram, 95),
		P99:        quantile(m.histogram, 99),
		Min:        time.Duration(m.histogram.Min()) * time.Microsecond,
		Max:        time.Duration(m.histogram.Max()) * time.Microsecond,
		Mean:       time.Duration(m.histogram.Mean()) * time.Microsecond,
		StdDev:     time.Duration(m.histogram.StdDev()) * time.Microsecond,
	}

	if secs := duration.Seconds(); secs > 0 {
		s.IterationsPerSecond = float64(total) / secs
		s.BytesPerSecond = float64(written) / secs
	}
	if total > 0 {
		s.ErrorRate = float64(errors) / float64(total)
	}
	return s
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

// Thresholds are pass/fail limits for a run. Zero values are not checked.
type Thresholds struct {
	P99       time.Duration
	ErrorRate float64
	MinRate   float64 // iterations per second
}

// ThresholdResult is the outcome of one threshold check
type ThresholdResult struct {
	Name     string
	Passed   bool
	Expected string
	Actual   string
}

// Evaluate checks the summary against t
func (s *Summary) Evaluate(t Thresholds) []ThresholdResult {
	var results []ThresholdResult

	if t.P99 > 0 {
		results = append(results, ThresholdResult{
			Name:     "p99",
			Passed:   s.P99 <= t.P99,
			Expected: "<= " + t.P99.String(),
			Actual:   s.P99.String(),
		})
	}

	if t.ErrorRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "error rate",
			Passed:   s.ErrorRate <= t.ErrorRate,
			Expected: "<= " + formatPercent(t.ErrorRate),
			Actual:   formatPercent(s.ErrorRate),
		})
	}

	if t.MinRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "min rate",
			Passed:   s.IterationsPerSecond >= t.MinRate,
			Expected: ">= " + formatFloat(t.MinRate) + "/s",
			Actual:   formatFloat(s.IterationsPerSecond) + "/s",
		})
	}

	return results
}

func formatPercent(f float64) string {
	return formatFloat(f*100) + "%"
}

func formatFloat(f float64) string {
	if f == float64(int(f)) {
		return strconv.Itoa(int(f))
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
