package stress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

// Reporter prints the header and summary of a run
type Reporter struct {
	writer  io.Writer
	noColor bool
	colors  palette
}

type palette struct {
	ok, bad, warn, info, strong *color.Color
}

type ReporterOption func(*Reporter)

func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{writer: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}

	newColor := func(attr color.Attribute) *color.Color {
		c := color.New(attr)
		if r.noColor {
			c.DisableColor()
		}
		return c
	}
	r.colors = palette{
		ok:     newColor(color.FgGreen),
		bad:    newColor(color.FgRed),
		warn:   newColor(color.FgYellow),
		info:   newColor(color.FgCyan),
		strong: newColor(color.Bold),
	}
	return r
}

// Header announces the target and the limits of the run
func (r *Reporter) Header(method, url string, cfg Config) {
	r.colors.info.Fprintf(r.writer, "\nStressing: %s %s\n", method, url)

	var limits []string
	if cfg.Requests > 0 {
		limits = append(limits, "Requests: "+strconv.Itoa(cfg.Requests))
	}
	if cfg.Duration > 0 {
		limits = append(limits, "Duration: "+formatDuration(cfg.Duration))
	}
	if cfg.Rate > 0 {
		limits = append(limits, fmt.Sprintf("Target: %.0f req/s", cfg.Rate))
	}
	if cfg.Warmup > 0 {
		limits = append(limits, "Warmup: "+strconv.Itoa(cfg.Warmup))
	}
	fmt.Fprintf(r.writer, "%s\n\n", strings.Join(limits, " | "))
}

func (r *Reporter) section(title string) {
	fmt.Fprintln(r.writer)
	r.colors.strong.Fprintln(r.writer, title)
}

// Summary prints totals, status classes, latency percentiles and, when any
// were evaluated, the thresholds
func (r *Reporter) Summary(report *Report) {
	r.section("STRESS SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Duration:   %s\n", formatDuration(report.Duration))
	fmt.Fprint(r.writer, "Total:      ")
	r.colors.strong.Fprint(r.writer, formatNumber(report.Total))
	fmt.Fprintf(r.writer, " requests (%.1f req/s)\n", report.RPS)

	r.statusClasses(report)

	if report.TransportErrors > 0 {
		fmt.Fprint(r.writer, "Transport:  ")
		r.colors.warn.Fprintf(r.writer, "%s errors\n", formatNumber(report.TransportErrors))
	}
	fmt.Fprintf(r.writer, "Error rate: %.1f%%\n", report.ErrorRate*100)

	r.section("LATENCY (ms)")
	tw := tabwriter.NewWriter(r.writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "min\tmean\tp50\tp90\tp95\tp99\tmax\t")
	latencies := []time.Duration{report.Min, report.Mean, report.P50, report.P90, report.P95, report.P99, report.Max}
	for _, d := range latencies {
		fmt.Fprintf(tw, "%s\t", formatLatencyMs(d))
	}
	fmt.Fprintln(tw)
	tw.Flush()

	if len(report.Thresholds) > 0 {
		r.thresholds(report)
	}
	fmt.Fprintln(r.writer)
}

func (r *Reporter) statusClasses(report *Report) {
	classes := make([]string, 0, len(report.StatusClasses))
	for class := range report.StatusClasses {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		c := r.colors.ok
		switch class {
		case "3xx":
			c = r.colors.info
		case "4xx", "5xx", "other":
			c = r.colors.bad
		}
		fmt.Fprintf(r.writer, "%-11s ", class+":")
		c.Fprintln(r.writer, formatNumber(report.StatusClasses[class]))
	}
}

func (r *Reporter) thresholds(report *Report) {
	r.section("THRESHOLDS")
	for _, tr := range report.Thresholds {
		mark, c := "✓", r.colors.ok
		if !tr.Passed {
			mark, c = "✗", r.colors.bad
		}
		c.Fprintf(r.writer, "  %s ", mark)
		fmt.Fprintf(r.writer, "%s %s    (actual: %s)\n", tr.Name, tr.Expected, tr.Actual)
	}

	fmt.Fprintln(r.writer)
	if report.ThresholdsPassed() {
		r.colors.ok.Fprintln(r.writer, "All thresholds passed!")
	} else {
		r.colors.bad.Fprintln(r.writer, "Some thresholds failed!")
	}
}

// JSONSummary writes the report as indented JSON
func (r *Reporter) JSONSummary(report *Report) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes, seconds := int(d.Minutes()), int(d.Seconds())%60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %02ds", minutes, seconds)
}

// formatLatencyMs keeps more precision for sub-10ms latencies
func formatLatencyMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	prec := 0
	switch {
	case ms < 1:
		prec = 2
	case ms < 10:
		prec = 1
	}
	return strconv.FormatFloat(ms, 'f', prec, 64)
}

// formatNumber groups digits in thousands: 1234567 -> 1,234,567
func formatNumber(n int64) string {
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 && digits[i-1] != '-' {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}
