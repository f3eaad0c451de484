package api

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rankpro/backend/analyzer"
	"github.com/rankpro/backend/external"
)

// CoreWebVitals holds LCP and FCP in seconds, FID in milliseconds and the
// unitless CLS. Nil when no page-speed report was available.
type CoreWebVitals struct {
	LCP *float64 `json:"LCP"`
	FID *float64 `json:"FID"`
	CLS *float64 `json:"CLS"`
	FCP *float64 `json:"FCP"`
}

// PerformanceResult is the response of /performance
type PerformanceResult struct {
	ID               string        `json:"id"`
	CreatedAt        time.Time     `json:"createdAt"`
	URL              string        `json:"url"`
	PerformanceScore int           `json:"performanceScore"`
	PageLoadTime     float64       `json:"pageLoadTime"` // seconds
	CoreWebVitals    CoreWebVitals `json:"coreWebVitals"`
	Uptime           string        `json:"uptime"`
	Source           string        `json:"source"` // "pagespeed" or "local"
}

// Performance reports page speed from PageSpeed Insights when configured.
// Without a report, or when the report carries no performance score, the
// page is timed locally and scored with the latency heuristic, using the
// report's LCP as a floor when there is one.
func (h *Handler) Performance(c *gin.Context) {
	target, ok := bindURL(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	result := &PerformanceResult{
		ID:        newID(),
		CreatedAt: h.now().UTC(),
		URL:       target,
		Uptime:    external.DefaultUptime,
	}

	report := h.pageSpeedReport(c, target)
	if report != nil {
		result.CoreWebVitals = CoreWebVitals{
			LCP: scaled(report.LCP, 1000, 2),
			FID: scaled(report.FID, 1, 0),
			CLS: scaled(report.CLS, 1, 3),
			FCP: scaled(report.FCP, 1000, 2),
		}
		if result.CoreWebVitals.LCP != nil {
			result.PageLoadTime = *result.CoreWebVitals.LCP
		}
	}

	if report != nil && report.PerformanceScore > 0 {
		result.Source = "pagespeed"
		result.PerformanceScore = report.PerformanceScore
	} else {
		fetched, err := h.fetcher.Fetch(ctx, target)
		if err != nil {
			respondError(c, err)
			return
		}
		var psi *analyzer.PSIMetrics
		if report != nil {
			psi = &analyzer.PSIMetrics{LCP: report.LCP, FCP: report.FCP, TTFB: report.TTFB, CLS: report.CLS}
		}
		result.Source = "local"
		result.PerformanceScore = analyzer.PerformanceScore(fetched.Meta.ResponseTimeMs, fetched.Meta.TotalBytes, psi)
		if result.PageLoadTime == 0 {
			result.PageLoadTime = round(float64(fetched.Meta.ResponseTimeMs)/1000, 2)
		}
	}

	if h.uptime != nil {
		if u, err := url.Parse(target); err == nil {
			result.Uptime = h.uptime.UptimeOrDefault(ctx, u.Hostname())
		}
	}

	c.JSON(http.StatusOK, result)
}

// pageSpeedReport returns the PSI report, or nil when none is available
func (h *Handler) pageSpeedReport(c *gin.Context, target string) *external.PageSpeedReport {
	if !h.pageSpeed.Configured() {
		return nil
	}
	report, err := h.pageSpeed.Report(c.Request.Context(), target)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("page speed lookup failed, timing the page locally")
		return nil
	}
	return report
}

// BrandRanking combines mentions, page rank and safe-browsing status
func (h *Handler) BrandRanking(c *gin.Context) {
	target, ok := bindURL(c)
	if !ok {
		return
	}

	ranking, err := h.brand.Rank(c.Request.Context(), target)
	if errors.Is(err, external.ErrInvalidTarget) {
		respondMessage(c, http.StatusBadRequest, "url must contain a hostname")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

func scaled(v *float64, divisor float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v/divisor, places)
	return &r
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
