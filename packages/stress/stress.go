package stress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
	"golang.org/x/time/rate"
)

// ErrFrozenRequester is returned when Run is given a requester that can
// only be used once
var ErrFrozenRequester = errors.New("stress runs need a requester that is not frozen")

// Run issues cfg.Requests sequential requests on r, or keeps issuing them
// until cfg.Duration elapses, whichever comes first. Transport errors are
// counted in the report. Any other request error ends the run and is
// returned. A cancelled ctx ends the run early with the partial report.
func Run(ctx context.Context, r *http.Requester, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r.IsFrozen() {
		return nil, ErrFrozenRequester
	}

	method := cfg.Method
	if method == "" {
		method = "GET"
	}

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	for i := 0; i < cfg.Warmup; i++ {
		if err := issue(ctx, r, method, limiter, nil); err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	runCtx := ctx
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	metrics := NewMetrics()
	metrics.Start()
	for n := 0; cfg.Requests == 0 || n < cfg.Requests; n++ {
		if runCtx.Err() != nil {
			break
		}
		if err := issue(runCtx, r, method, limiter, metrics); err != nil {
			metrics.Stop()
			return metrics.Report(), err
		}
	}
	metrics.Stop()

	report := metrics.Report()
	if cfg.Thresholds.HasThresholds() {
		report.Thresholds = report.EvaluateThresholds(cfg.Thresholds)
	}
	return report, nil
}

// issue sends one request and records it when metrics is not nil. Requests
// cut short by ctx are not recorded.
func issue(ctx context.Context, r *http.Requester, method string, limiter *rate.Limiter, metrics *Metrics) error {
	if limiter != nil {
		// Wait fails early when the next slot lies past the deadline
		if err := limiter.Wait(ctx); err != nil {
			<-ctx.Done()
			return nil
		}
	}

	start := time.Now()
	_, err := r.RequestContext(ctx, method)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, http.ErrRateLimited) {
			return nil
		}
		var transportErr *http.TransportError
		if !errors.As(err, &transportErr) {
			return fmt.Errorf("stress request failed: %w", err)
		}
		if metrics != nil {
			metrics.RecordError(elapsed)
		}
		return nil
	}

	if metrics != nil {
		info, _ := r.Info()
		metrics.Record(info.StatusCode, info.Duration)
	}
	return nil
}
