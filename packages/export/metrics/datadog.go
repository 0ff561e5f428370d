package metrics

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
)

// DataDogExporter exports metrics to the DataDog series API
type DataDogExporter struct {
	apiKey   string
	site     string // e.g., "datadoghq.com", "datadoghq.eu"
	endpoint string
	tags     []string
	prefix   string
	options  []http.ClientOption
	client   *http.Client
	now      func() time.Time
}

// DataDogOption is a functional option for DataDogExporter
type DataDogOption func(*DataDogExporter)

// WithDataDogAPIKey sets the DataDog API key
func WithDataDogAPIKey(apiKey string) DataDogOption {
	return func(d *DataDogExporter) {
		d.apiKey = apiKey
	}
}

// WithDataDogSite sets the DataDog site (e.g., "datadoghq.com", "datadoghq.eu")
func WithDataDogSite(site string) DataDogOption {
	return func(d *DataDogExporter) {
		d.site = site
	}
}

// WithDataDogEndpoint overrides the full series URL
func WithDataDogEndpoint(url string) DataDogOption {
	return func(d *DataDogExporter) {
		d.endpoint = url
	}
}

// WithDataDogTags sets additional tags for all metrics
func WithDataDogTags(tags []string) DataDogOption {
	return func(d *DataDogExporter) {
		d.tags = tags
	}
}

// WithDataDogPrefix sets a prefix for metric names
func WithDataDogPrefix(prefix string) DataDogOption {
	return func(d *DataDogExporter) {
		d.prefix = prefix
	}
}

// WithDataDogClientOptions configures the requester used to send series
func WithDataDogClientOptions(opts ...http.ClientOption) DataDogOption {
	return func(d *DataDogExporter) {
		d.options = append(d.options, opts...)
	}
}

// NewDataDogExporter creates a new DataDog metrics exporter. The API key
// falls back to DD_API_KEY.
func NewDataDogExporter(opts ...DataDogOption) *DataDogExporter {
	d := &DataDogExporter{
		site:    "datadoghq.com",
		prefix:  "requester",
		tags:    make([]string, 0),
		options: []http.ClientOption{http.WithTimeout(10 * time.Second)},
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.apiKey == "" {
		d.apiKey = os.Getenv("DD_API_KEY")
	}
	d.client = http.NewClient(d.options...)

	return d
}

type datadogMetric struct {
	Metric string   `json:"metric"`
	Type   string   `json:"type"`
	Points [][]any  `json:"points"`
	Tags   []string `json:"tags,omitempty"`
}

type datadogPayload struct {
	Series []datadogMetric `json:"series"`
}

// Export exports aggregated metrics to DataDog
func (d *DataDogExporter) Export(metrics *AggregateMetrics) error {
	if d.apiKey == "" {
		return fmt.Errorf("DataDog API key not configured")
	}

	now := float64(d.now().Unix())
	series := make([]datadogMetric, 0)
	add := func(name, kind string, value float64, tags []string) {
		series = append(series, datadogMetric{
			Metric: d.metricName(name),
			Type:   kind,
			Points: [][]any{{now, value}},
			Tags:   tags,
		})
	}

	add("requests.total", "count", float64(metrics.TotalRequests), d.tags)
	add("requests.success", "count", float64(metrics.SuccessCount), d.tags)
	add("requests.failed", "count", float64(metrics.FailureCount), d.tags)
	add("requests.transport_errors", "count", float64(metrics.TransportErrors), d.tags)
	add("duration.avg", "gauge", metrics.AvgDurationMs, d.tags)
	add("duration.min", "gauge", metrics.MinDurationMs, d.tags)
	add("duration.max", "gauge", metrics.MaxDurationMs, d.tags)

	codes := make([]int, 0, len(metrics.StatusCodes))
	for code := range metrics.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		tags := append([]string{fmt.Sprintf("status:%d", code)}, d.tags...)
		add("requests.by_status", "count", float64(metrics.StatusCodes[code]), tags)
	}

	methods := make([]string, 0, len(metrics.ByMethod))
	for method := range metrics.ByMethod {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	for _, method := range methods {
		ma := metrics.ByMethod[method]
		tags := append([]string{fmt.Sprintf("method:%s", method)}, d.tags...)
		add("method.requests", "count", float64(ma.TotalRequests), tags)
		add("method.duration.avg", "gauge", ma.AvgDurationMs, tags)
	}

	return d.sendMetrics(series)
}

func (d *DataDogExporter) metricName(name string) string {
	return d.prefix + "." + name
}

func (d *DataDogExporter) url() string {
	if d.endpoint != "" {
		return d.endpoint
	}
	return fmt.Sprintf("https://api.%s/api/v1/series", d.site)
}

func (d *DataDogExporter) sendMetrics(series []datadogMetric) error {
	r := d.client.New(d.url()).
		SetHeaders(map[string]string{"DD-API-KEY": d.apiKey}).
		WithJSON(datadogPayload{Series: series}).
		Frozen()
	defer r.Close()

	if _, err := r.Post(); err != nil {
		return fmt.Errorf("failed to send metrics: %w", err)
	}

	if code := r.StatusCode(); code != 202 && code != 200 {
		body, _ := r.Response()
		return fmt.Errorf("DataDog API returned status %d: %s", code, string(body))
	}

	return nil
}

// Close closes the DataDog exporter
func (d *DataDogExporter) Close() error {
	return nil
}
