// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rankpro/backend/analyzer"
	"github.com/rankpro/backend/external"
	"github.com/rankpro/backend/logging"
	"github.com/rankpro/backend/middleware"
	"github.com/rankpro/backend/stats"
	"github.com/rankpro/backend/store"
)

// Deps are the collaborators of the HTTP layer. Statistics, Counters and
// the external clients may be nil.
type Deps struct {
	Analyzer *analyzer.Analyzer
	Fetcher  *analyzer.Fetcher
	Store    store.Store
	Limiter  middleware.Limiter

	PageSpeed *external.PageSpeedClient
	Brand     *external.BrandClient
	Uptime    *external.UptimeClient

	Statistics     *logging.Statistics
	Counters       *stats.Storage
	FrontendOrigin string
}

// Handler serves the /api routes
type Handler struct {
	analyzer   *analyzer.Analyzer
	fetcher    *analyzer.Fetcher
	store      store.Store
	pageSpeed  *external.PageSpeedClient
	brand      *external.BrandClient
	uptime     *external.UptimeClient
	statistics *logging.Statistics
	counters   *stats.Storage
	now        func() time.Time
}

func NewHandler(d Deps) *Handler {
	brand := d.Brand
	if brand == nil {
		brand = external.NewBrandClient(external.BrandKeys{})
	}
	return &Handler{
		analyzer:   d.Analyzer,
		fetcher:    d.Fetcher,
		store:      d.Store,
		pageSpeed:  d.PageSpeed,
		brand:      brand,
		uptime:     d.Uptime,
		statistics: d.Statistics,
		counters:   d.Counters,
		now:        time.Now,
	}
}

// NewRouter builds the gin engine with middleware and every route
func NewRouter(d Deps) *gin.Engine {
	h := NewHandler(d)

	r := gin.New()
	r.Use(logging.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORS(d.FrontendOrigin))
	if d.Statistics != nil {
		r.Use(middleware.Stats(d.Statistics, d.Counters))
	}

	analyzeChain := []gin.HandlerFunc{h.Analyze}
	if d.Limiter != nil {
		analyzeChain = append([]gin.HandlerFunc{middleware.RateLimit(d.Limiter)}, analyzeChain...)
	}

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/statistics", h.Statistics)

		api.POST("/analyze", analyzeChain...)
		api.GET("/analyses", h.ListAnalyses)
		api.GET("/analyses/latest", h.LatestAnalysis)
		api.GET("/analyses/:id", h.GetAnalysis)
		api.GET("/trends/:metric/:days", h.Trend)

		api.POST("/performance", h.Performance)
		api.POST("/brand-ranking", h.BrandRanking)
		api.GET("/export/:format", h.Export)
	}

	return r
}
