package stress

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Metrics collects the outcome of each request in a run
type Metrics struct {
	mu sync.Mutex

	total           int64
	statusClasses   map[string]int64
	transportErrors int64

	// Latency histogram (in microseconds for precision)
	histogram *hdrhistogram.Histogram

	startTime time.Time
	endTime   time.Time
}

// NewMetrics creates a new Metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		// Histogram: 1us to 60s range, 3 significant digits
		histogram:     hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		statusClasses: make(map[string]int64),
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

// Record records a completed request with its status code
func (m *Metrics) Record(statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.statusClasses[StatusClass(statusCode)]++
	_ = m.histogram.RecordValue(clampLatency(duration))
}

// RecordError records a request that produced no response
func (m *Metrics) RecordError(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.transportErrors++
	_ = m.histogram.RecordValue(clampLatency(duration))
}

func clampLatency(d time.Duration) int64 {
	us := d.Microseconds()
	if us < minLatencyUs {
		us = minLatencyUs
	}
	if us > maxLatencyUs {
		us = maxLatencyUs
	}
	return us
}

// StatusClass groups a status code as "2xx", "4xx" and so on
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Report is the summary of a run
type Report struct {
	Duration        time.Duration    `json:"duration"`
	Total           int64            `json:"total"`
	StatusClasses   map[string]int64 `json:"status_classes"`
	TransportErrors int64            `json:"transport_errors"`

	RPS       float64 `json:"rps"`
	ErrorRate float64 `json:"error_rate"`

	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P90  time.Duration `json:"p90"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`

	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// Success returns the number of 2xx responses
func (r *Report) Success() int64 {
	return r.StatusClasses["2xx"]
}

// Errors returns transport errors plus 4xx and 5xx responses
func (r *Report) Errors() int64 {
	return r.TransportErrors + r.StatusClasses["4xx"] + r.StatusClasses["5xx"]
}

// ThresholdsPassed reports whether every evaluated threshold passed
func (r *Report) ThresholdsPassed() bool {
	for _, tr := range r.Thresholds {
		if !tr.Passed {
			return false
		}
	}
	return true
}

// Report returns the summary of what has been recorded so far
func (m *Metrics) Report() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	classes := make(map[string]int64, len(m.statusClasses))
	for k, v := range m.statusClasses {
		classes[k] = v
	}

	report := &Report{
		Duration:        duration,
		Total:           m.total,
		StatusClasses:   classes,
		TransportErrors: m.transportErrors,
	}

	if duration.Seconds() > 0 {
		report.RPS = float64(m.total) / duration.Seconds()
	}
	if m.total > 0 {
		report.ErrorRate = float64(report.Errors()) / float64(m.total)
		report.Min = time.Duration(m.histogram.Min()) * time.Microsecond
		report.Max = time.Duration(m.histogram.Max()) * time.Microsecond
		report.Mean = time.Duration(m.histogram.Mean()) * time.Microsecond
		report.P50 = time.Duration(m.histogram.ValueAtQuantile(50)) * time.Microsecond
		report.P90 = time.Duration(m.histogram.ValueAtQuantile(90)) * time.Microsecond
		report.P95 = time.Duration(m.histogram.ValueAtQuantile(95)) * time.Microsecond
		report.P99 = time.Duration(m.histogram.ValueAtQuantile(99)) * time.Microsecond
	}

	return report
}

// EvaluateThresholds evaluates the thresholds against the report
func (r *Report) EvaluateThresholds(t Thresholds) []ThresholdResult {
	var results []ThresholdResult

	latency := func(name string, limit, actual time.Duration) {
		if limit > 0 {
			results = append(results, ThresholdResult{
				Name:     name,
				Passed:   actual <= limit,
				Expected: "< " + limit.String(),
				Actual:   actual.String(),
			})
		}
	}
	latency("p50", t.P50, r.P50)
	latency("p95", t.P95, r.P95)
	latency("p99", t.P99, r.P99)
	latency("max latency", t.MaxLatency, r.Max)

	if t.ErrorRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "error rate",
			Passed:   r.ErrorRate <= t.ErrorRate,
			Expected: formatPercent(t.ErrorRate),
			Actual:   formatPercent(r.ErrorRate),
		})
	}

	if t.MinRPS > 0 {
		results = append(results, ThresholdResult{
			Name:     "min RPS",
			Passed:   r.RPS >= t.MinRPS,
			Expected: "> " + formatFloat(t.MinRPS),
			Actual:   formatFloat(r.RPS),
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
