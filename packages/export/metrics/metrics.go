// Package metrics collects request metrics from requesters and exports them
// to Prometheus, JSON files and DataDog.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AggregateMetrics represents aggregated metrics from observed requests
type AggregateMetrics struct {
	TotalRequests   int64                       `json:"total_requests" yaml:"total_requests"`
	SuccessCount    int64                       `json:"success_count" yaml:"success_count"`
	FailureCount    int64                       `json:"failure_count" yaml:"failure_count"`
	TransportErrors int64                       `json:"transport_errors" yaml:"transport_errors"`
	TotalDurationMs float64                     `json:"total_duration_ms" yaml:"total_duration_ms"`
	MinDurationMs   float64                     `json:"min_duration_ms" yaml:"min_duration_ms"`
	MaxDurationMs   float64                     `json:"max_duration_ms" yaml:"max_duration_ms"`
	AvgDurationMs   float64                     `json:"avg_duration_ms" yaml:"avg_duration_ms"`
	StatusCodes     map[int]int64               `json:"status_codes" yaml:"status_codes"`
	ByMethod        map[string]*MethodAggregate `json:"by_method" yaml:"by_method"`
}

// MethodAggregate represents aggregated metrics for a single HTTP method
type MethodAggregate struct {
	Method        string  `json:"method" yaml:"method"`
	TotalRequests int64   `json:"total_requests" yaml:"total_requests"`
	SuccessCount  int64   `json:"success_count" yaml:"success_count"`
	FailureCount  int64   `json:"failure_count" yaml:"failure_count"`
	AvgDurationMs float64 `json:"avg_duration_ms" yaml:"avg_duration_ms"`
	MinDurationMs float64 `json:"min_duration_ms" yaml:"min_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms" yaml:"max_duration_ms"`
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export exports metrics to the target destination
	Export(metrics *AggregateMetrics) error

	// Close closes the exporter and flushes any buffered data
	Close() error
}

// Collector observes requests, updates Prometheus metrics and keeps an
// aggregate for the other exporters
type Collector struct {
	mu        sync.Mutex
	aggregate *AggregateMetrics
	exporters []Exporter
	gatherer  prometheus.Gatherer

	requests        *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

var _ http.Observer = (*Collector)(nil)

// NewCollector registers the requester metrics on reg. A nil reg uses a
// fresh registry.
func NewCollector(reg prometheus.Registerer, exporters ...Exporter) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		aggregate: newAggregate(),
		exporters: exporters,
		gatherer:  prometheus.DefaultGatherer,
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	factory := promauto.With(reg)
	c.requests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requester_requests_total",
			Help: "Completed requests by method and status class",
		},
		[]string{"method", "class"},
	)
	c.transportErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requester_transport_errors_total",
			Help: "Requests that failed before a response was received",
		},
		[]string{"method"},
	)
	c.duration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "requester_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	return c
}

func newAggregate() *AggregateMetrics {
	return &AggregateMetrics{
		StatusCodes: make(map[int]int64),
		ByMethod:    make(map[string]*MethodAggregate),
	}
}

// ObserveRequest records one finished request
func (c *Collector) ObserveRequest(e http.Event) {
	c.duration.WithLabelValues(e.Method).Observe(e.Duration.Seconds())
	if e.Err != nil {
		c.transportErrors.WithLabelValues(e.Method).Inc()
	} else {
		c.requests.WithLabelValues(e.Method, StatusClass(e.StatusCode)).Inc()
	}

	c.mu.Lock()
	c.updateAggregate(e)
	c.mu.Unlock()
}

// StatusClass groups a status code as "2xx", "4xx" and so on
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (c *Collector) updateAggregate(e http.Event) {
	a := c.aggregate
	ms := durationMs(e.Duration)
	passed := e.Err == nil && e.StatusCode >= 200 && e.StatusCode < 400

	a.TotalRequests++
	a.TotalDurationMs += ms
	if passed {
		a.SuccessCount++
	} else {
		a.FailureCount++
	}
	if e.Err != nil {
		a.TransportErrors++
	} else {
		a.StatusCodes[e.StatusCode]++
	}

	if a.TotalRequests == 1 {
		a.MinDurationMs = ms
		a.MaxDurationMs = ms
	} else {
		if ms < a.MinDurationMs {
			a.MinDurationMs = ms
		}
		if ms > a.MaxDurationMs {
			a.MaxDurationMs = ms
		}
	}
	a.AvgDurationMs = a.TotalDurationMs / float64(a.TotalRequests)

	ma, ok := a.ByMethod[e.Method]
	if !ok {
		ma = &MethodAggregate{
			Method:        e.Method,
			MinDurationMs: ms,
			MaxDurationMs: ms,
		}
		a.ByMethod[e.Method] = ma
	}
	ma.TotalRequests++
	if passed {
		ma.SuccessCount++
	} else {
		ma.FailureCount++
	}
	if ms < ma.MinDurationMs {
		ma.MinDurationMs = ms
	}
	if ms > ma.MaxDurationMs {
		ma.MaxDurationMs = ms
	}
	ma.AvgDurationMs = (ma.AvgDurationMs*float64(ma.TotalRequests-1) + ms) / float64(ma.TotalRequests)
}

// GetAggregate returns a copy of the aggregated metrics
func (c *Collector) GetAggregate() *AggregateMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := *c.aggregate
	out.StatusCodes = make(map[int]int64, len(c.aggregate.StatusCodes))
	for k, v := range c.aggregate.StatusCodes {
		out.StatusCodes[k] = v
	}
	out.ByMethod = make(map[string]*MethodAggregate, len(c.aggregate.ByMethod))
	for k, v := range c.aggregate.ByMethod {
		m := *v
		out.ByMethod[k] = &m
	}
	return &out
}

// Flush exports all aggregated metrics
func (c *Collector) Flush() error {
	aggregate := c.GetAggregate()
	for _, exp := range c.exporters {
		if err := exp.Export(aggregate); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all exporters
func (c *Collector) Close() error {
	for _, exp := range c.exporters {
		if err := exp.Close(); err != nil {
			return err
		}
	}
	return nil
}
