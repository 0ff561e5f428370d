package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/export/metrics"
	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/abdul-hamid-achik/requester/packages/stress"
	"github.com/spf13/cobra"
)

type stressOptions struct {
	shapeOptions

	requests  int
	duration  time.Duration
	warmup    int
	threshold string
	output    string

	metricsAddr   string
	metricsFile   string
	datadogAPIKey string
	datadogSite   string
	datadogTags   string

	notify notifyOptions
}

func newStressCmd(g *globalOptions) *cobra.Command {
	o := &stressOptions{}
	cmd := &cobra.Command{
		Use:   "stress <method> <url>",
		Short: "Send the same request repeatedly and report latency",
		Long: `Send the same request over and over on one requester and report
throughput, status classes and latency percentiles.

Examples:
  # 500 requests as fast as the server answers
  requester stress GET https://api.example.com/health -n 500

  # One minute at 50 requests per second
  requester stress GET https://api.example.com/users -d 1m --rate 50

  # With thresholds for CI/CD
  requester stress GET https://api.example.com/users -n 1000 --threshold "p95<200ms,errors<0.1%"

  # Expose Prometheus metrics while running
  requester stress POST https://api.example.com/events --json '{"ok":true}' -d 5m --metrics-addr :9090`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, g, args[0], args[1])
		},
	}

	fs := cmd.Flags()
	o.shapeOptions.addFlags(fs, "json")
	fs.IntVarP(&o.requests, "requests", "n", 0, "Number of requests (default 100 unless --duration is set)")
	fs.DurationVarP(&o.duration, "duration", "d", 0, "Run for this long (e.g. 30s, 5m)")
	fs.IntVar(&o.warmup, "warmup", 0, "Requests sent first and left out of the report")
	fs.StringVar(&o.threshold, "threshold", "", "Pass/fail thresholds (e.g. \"p95<200ms,errors<0.1%\")")
	fs.StringVarP(&o.output, "output", "o", "console", "Report format: console, json")

	fs.StringVar(&o.metricsAddr, "metrics-addr", getEnvString("REQUESTER_METRICS_ADDR", ""), "Serve Prometheus metrics on this address while running (env: REQUESTER_METRICS_ADDR)")
	fs.StringVar(&o.metricsFile, "metrics-file", getEnvString("REQUESTER_METRICS_FILE", ""), "Write aggregated metrics to this file, as YAML for .yaml/.yml and JSON otherwise (env: REQUESTER_METRICS_FILE)")
	fs.StringVar(&o.datadogAPIKey, "datadog-api-key", getEnvString("DD_API_KEY", ""), "Send aggregated metrics to DataDog (env: DD_API_KEY)")
	fs.StringVar(&o.datadogSite, "datadog-site", getEnvString("DD_SITE", "datadoghq.com"), "DataDog site (env: DD_SITE)")
	fs.StringVar(&o.datadogTags, "datadog-tags", getEnvString("DD_TAGS", ""), "Comma-separated DataDog tags (env: DD_TAGS)")
	o.notify.addFlags(fs)

	return cmd
}

// config builds the stress configuration from the flags
func (o *stressOptions) config(method string) (stress.Config, error) {
	cfg := stress.DefaultConfig()
	cfg.Method = strings.ToUpper(method)
	cfg.Warmup = o.warmup
	cfg.Duration = o.duration
	cfg.Rate = o.rate

	switch {
	case o.requests > 0:
		cfg.Requests = o.requests
	case o.duration > 0:
		cfg.Requests = 0
	}

	if o.threshold != "" {
		t, err := stress.ParseThresholds(o.threshold)
		if err != nil {
			return cfg, usageError(fmt.Errorf("invalid --threshold: %w", err))
		}
		cfg.Thresholds = t
	}

	if err := cfg.Validate(); err != nil {
		return cfg, usageError(err)
	}
	return cfg, nil
}

func (o *stressOptions) exporters(target string) []metrics.Exporter {
	var exporters []metrics.Exporter
	if o.metricsFile != "" {
		exporters = append(exporters, metrics.NewFileExporter(
			metrics.WithFilePath(o.metricsFile),
			metrics.WithFileLabels(map[string]string{"target": target}),
		))
	}
	if o.datadogAPIKey != "" {
		var tags []string
		for _, tag := range strings.Split(o.datadogTags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		exporters = append(exporters, metrics.NewDataDogExporter(
			metrics.WithDataDogAPIKey(o.datadogAPIKey),
			metrics.WithDataDogSite(o.datadogSite),
			metrics.WithDataDogTags(tags),
		))
	}
	return exporters
}

func (o *stressOptions) run(cmd *cobra.Command, g *globalOptions, method, rawURL string) error {
	cfg, err := o.config(method)
	if err != nil {
		return err
	}
	if o.output != "console" && o.output != "json" {
		return usageError(fmt.Errorf("unknown report format %q (want console or json)", o.output))
	}

	notifier, err := o.notify.manager(g)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(metrics.Registry(), o.exporters(cfg.Method+" "+rawURL)...)
	defer collector.Close()

	if o.metricsAddr != "" {
		server, err := metrics.Serve(o.metricsAddr, collector, g.logger)
		if err != nil {
			return &ExitError{Code: ExitConfigError, Err: fmt.Errorf("failed to serve metrics: %w", err)}
		}
		defer server.Close()
		g.logger.Info().Str("addr", server.Addr()).Msg("serving Prometheus metrics on /metrics")
	}

	opts, err := o.clientOptions(g, cmd.Flags())
	if err != nil {
		return err
	}
	opts = append(opts, http.WithObserver(collector))
	// --rate paces the run itself, not the requester
	opts = append(opts, http.WithRateLimit(0))
	// placeholders resolve once, so every request in the run is identical
	res, err := o.resolver(g)
	if err != nil {
		return err
	}
	target, err := resolve(res, rawURL)
	if err != nil {
		return err
	}
	r := http.New(target, opts...)
	defer r.Close()
	if err := o.apply(r, res); err != nil {
		return err
	}

	reporter := stress.NewReporter(
		stress.WithWriter(cmd.OutOrStdout()),
		stress.WithNoColor(g.noColor),
	)
	if o.output == "console" {
		reporter.Header(cfg.Method, rawURL, cfg)
	}

	report, runErr := stress.Run(cmd.Context(), r, cfg)
	if report == nil {
		return runErr
	}

	if err := collector.Flush(); err != nil {
		g.logger.Warn().Err(err).Msg("failed to export metrics")
	}

	if notifier != nil {
		if err := notifier.Notify(stressSummary(cfg.Method+" "+rawURL, report)); err != nil {
			g.logger.Warn().Err(err).Msg("failed to send notification")
		}
	}

	if o.output == "json" {
		if err := reporter.JSONSummary(report); err != nil {
			return err
		}
	} else {
		reporter.Summary(report)
	}

	if runErr != nil {
		return runErr
	}
	if !report.ThresholdsPassed() {
		return &ExitError{Code: ExitTestFailure, Err: errors.New("thresholds failed"), Silent: true}
	}
	return nil
}
