package external

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/rankpro/backend/analyzer"
)

const pageSpeedHost = "https://www.googleapis.com"

// ErrNotConfigured is returned when a client has no API key
var ErrNotConfigured = errors.New("collaborator not configured")

// PageSpeedReport is the subset of a Lighthouse run the API exposes.
// Timings are milliseconds; nil means the report did not include the metric.
type PageSpeedReport struct {
	PerformanceScore int
	LCP              *float64
	FCP              *float64
	TTFB             *float64
	CLS              *float64
	FID              *float64
}

// PageSpeedClient calls the PageSpeed Insights v5 API. Calls are throttled
// to one per second to stay inside the public quota.
type PageSpeedClient struct {
	base
	apiKey   string
	strategy string
	limiter  *rate.Limiter
}

func NewPageSpeedClient(apiKey, strategy string, opts ...Option) *PageSpeedClient {
	if strategy == "" {
		strategy = "mobile"
	}
	return &PageSpeedClient{
		base:     newBase(opts),
		apiKey:   apiKey,
		strategy: strategy,
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Configured reports whether an API key is set
func (c *PageSpeedClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

type numericAudit struct {
	NumericValue *float64 `json:"numericValue"`
}

type psiResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance struct {
				Score *float64 `json:"score"`
			} `json:"performance"`
		} `json:"categories"`
		Audits struct {
			Metrics struct {
				Details struct {
					Items []struct {
						LargestContentfulPaint *float64 `json:"largestContentfulPaint"`
						FirstContentfulPaint   *float64 `json:"firstContentfulPaint"`
						CumulativeLayoutShift  *float64 `json:"cumulativeLayoutShift"`
						MaxPotentialFID        *float64 `json:"maxPotentialFID"`
					} `json:"items"`
				} `json:"details"`
			} `json:"metrics"`
			LCP          numericAudit `json:"largest-contentful-paint"`
			FCP          numericAudit `json:"first-contentful-paint"`
			CLS          numericAudit `json:"cumulative-layout-shift"`
			FID          numericAudit `json:"max-potential-fid"`
			ServerTiming numericAudit `json:"server-response-time"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

// Report runs Lighthouse for target
func (c *PageSpeedClient) Report(ctx context.Context, target string) (*PageSpeedReport, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("url", target)
	q.Set("key", c.apiKey)
	q.Set("strategy", c.strategy)
	q.Set("category", "performance")

	req, err := http.NewRequest(http.MethodGet, c.endpoint(pageSpeedHost, "/pagespeedonline/v5/runPagespeed")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var body psiResponse
	if err := c.doJSON(ctx, "pagespeed", req, &body); err != nil {
		return nil, err
	}
	return body.report(), nil
}

func (r *psiResponse) report() *PageSpeedReport {
	lh := r.LighthouseResult
	report := &PageSpeedReport{
		LCP:  lh.Audits.LCP.NumericValue,
		FCP:  lh.Audits.FCP.NumericValue,
		CLS:  lh.Audits.CLS.NumericValue,
		FID:  lh.Audits.FID.NumericValue,
		TTFB: lh.Audits.ServerTiming.NumericValue,
	}
	if score := lh.Categories.Performance.Score; score != nil {
		report.PerformanceScore = int(math.Round(*score * 100))
	}

	// the metrics summary wins over the individual audits
	if items := lh.Audits.Metrics.Details.Items; len(items) > 0 {
		m := items[0]
		report.LCP = firstNonNil(m.LargestContentfulPaint, report.LCP)
		report.FCP = firstNonNil(m.FirstContentfulPaint, report.FCP)
		report.CLS = firstNonNil(m.CumulativeLayoutShift, report.CLS)
		report.FID = firstNonNil(m.MaxPotentialFID, report.FID)
	}
	return report
}

// Run implements analyzer.PageSpeedProvider
func (c *PageSpeedClient) Run(ctx context.Context, target string) (*analyzer.PSIMetrics, error) {
	report, err := c.Report(ctx, target)
	if err != nil {
		return nil, err
	}
	return &analyzer.PSIMetrics{
		LCP:              report.LCP,
		FCP:              report.FCP,
		TTFB:             report.TTFB,
		CLS:              report.CLS,
		PerformanceScore: report.PerformanceScore,
	}, nil
}

func firstNonNil(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
