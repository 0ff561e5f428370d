package stress

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	reqhttp "github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingServer(t *testing.T, status func(n int64) int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var count atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status(n))
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	t.Cleanup(server.Close)
	return server, &count
}

func TestRun_Requests(t *testing.T) {
	server, count := countingServer(t, func(n int64) int {
		if n%5 == 0 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	})

	r := reqhttp.New(server.URL)
	defer r.Close()

	report, err := Run(context.Background(), r, Config{Method: "GET", Requests: 10})
	require.NoError(t, err)

	assert.Equal(t, int64(10), count.Load())
	assert.Equal(t, int64(10), report.Total)
	assert.Equal(t, int64(8), report.StatusClasses["2xx"])
	assert.Equal(t, int64(2), report.StatusClasses["5xx"])
	assert.Zero(t, report.TransportErrors)
	assert.Greater(t, report.Max, time.Duration(0))
	assert.Empty(t, report.Thresholds)

	assert.True(t, r.Requested())
	assert.Equal(t, 500, r.StatusCode(), "the requester keeps the last capture")
}

func TestRun_Warmup(t *testing.T) {
	server, count := countingServer(t, func(int64) int { return http.StatusNoContent })

	r := reqhttp.New(server.URL)
	defer r.Close()

	report, err := Run(context.Background(), r, Config{Requests: 3, Warmup: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(5), count.Load())
	assert.Equal(t, int64(3), report.Total)
}

func TestRun_Duration(t *testing.T) {
	server, _ := countingServer(t, func(int64) int { return http.StatusOK })

	r := reqhttp.New(server.URL)
	defer r.Close()

	start := time.Now()
	report, err := Run(context.Background(), r, Config{Duration: 200 * time.Millisecond, Rate: 20})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Greater(t, report.Total, int64(0))
	assert.LessOrEqual(t, report.Total, int64(6))
	assert.Equal(t, report.Total, report.StatusClasses["2xx"])
}

func TestRun_TransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	r := reqhttp.New(url)
	defer r.Close()

	report, err := Run(context.Background(), r, Config{Requests: 3})
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.Total)
	assert.Equal(t, int64(3), report.TransportErrors)
	assert.Equal(t, 1.0, report.ErrorRate)
}

func TestRun_ConfigurationErrorStops(t *testing.T) {
	r := reqhttp.New("not a url")
	defer r.Close()

	report, err := Run(context.Background(), r, Config{Requests: 3})
	require.Error(t, err)

	var cfgErr *reqhttp.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, report.Total)
}

func TestRun_Rejects(t *testing.T) {
	r := reqhttp.New("http://example.test").Frozen()
	defer r.Close()

	_, err := Run(context.Background(), r, Config{Requests: 1})
	assert.ErrorIs(t, err, ErrFrozenRequester)

	_, err = Run(context.Background(), reqhttp.New("http://example.test"), Config{})
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	server, _ := countingServer(t, func(int64) int { return http.StatusOK })

	r := reqhttp.New(server.URL)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, r, Config{Requests: 5})
	require.NoError(t, err)
	assert.Zero(t, report.Total)
}

func TestRun_Thresholds(t *testing.T) {
	server, _ := countingServer(t, func(int64) int { return http.StatusOK })

	r := reqhttp.New(server.URL)
	defer r.Close()

	report, err := Run(context.Background(), r, Config{
		Requests:   5,
		Thresholds: Thresholds{P99: 5 * time.Second, ErrorRate: 0.1},
	})
	require.NoError(t, err)

	assert.Len(t, report.Thresholds, 2)
	assert.True(t, report.ThresholdsPassed())
}

func TestReporter_Summary(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(WithWriter(&buf), WithNoColor(true))

	reporter.Header("GET", "http://example.test", Config{Requests: 1000, Rate: 50})
	reporter.Summary(&Report{
		Duration:        1500 * time.Millisecond,
		Total:           1200,
		StatusClasses:   map[string]int64{"2xx": 1190, "5xx": 10},
		TransportErrors: 2,
		P50:             12 * time.Millisecond,
		Thresholds:      []ThresholdResult{{Name: "p95", Passed: false, Expected: "< 10ms", Actual: "12ms"}},
	})

	out := buf.String()
	assert.Contains(t, out, "Stressing: GET http://example.test")
	assert.Contains(t, out, "Requests: 1000 | Target: 50 req/s")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "2xx:")
	assert.Contains(t, out, "1,190")
	assert.Contains(t, out, "2 errors")
	assert.Contains(t, out, "Some thresholds failed!")
	assert.NotContains(t, out, "\x1b[")
}

func TestReporter_JSONSummary(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(WithWriter(&buf))

	require.NoError(t, reporter.JSONSummary(&Report{Total: 3, StatusClasses: map[string]int64{"2xx": 3}}))
	assert.Contains(t, buf.String(), `"total": 3`)
	assert.Contains(t, buf.String(), `"2xx": 3`)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", formatNumber(0))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
}
