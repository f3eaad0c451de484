package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rankpro/backend/analyzer"
	"github.com/rankpro/backend/api"
	"github.com/rankpro/backend/config"
	"github.com/rankpro/backend/external"
	"github.com/rankpro/backend/logging"
	"github.com/rankpro/backend/middleware"
	"github.com/rankpro/backend/stats"
	"github.com/rankpro/backend/store"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.Environment, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	counters, err := stats.NewStorage(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stats storage")
	}
	statistics, err := logging.NewStatistics(cfg.DataDir, cfg.DevMode)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare statistics directory")
	}

	records := openStore(cfg, counters)
	limiter, closeLimiter := openLimiter(cfg)

	fetcher := analyzer.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent)
	pageSpeed := external.NewPageSpeedClient(cfg.External.PageSpeedKey, cfg.External.PageSpeedStrategy)
	brand := external.NewBrandClient(external.BrandKeys{
		NewsAPI:      cfg.External.NewsAPIKey,
		OpenPageRank: cfg.External.OpenPageRankKey,
		SafeBrowsing: cfg.External.SafeBrowsingKey,
	})
	uptime := external.NewUptimeClient(cfg.External.UptimeRobotKey)

	var opts []analyzer.Option
	if pageSpeed.Configured() {
		opts = append(opts, analyzer.WithPageSpeed(pageSpeed))
	}
	if cfg.BrandConfigured() {
		opts = append(opts, analyzer.WithBrandScorer(brand))
	}

	router := api.NewRouter(api.Deps{
		Analyzer:       analyzer.New(fetcher, opts...),
		Fetcher:        fetcher,
		Store:          records,
		Limiter:        limiter,
		PageSpeed:      pageSpeed,
		Brand:          brand,
		Uptime:         uptime,
		Statistics:     statistics,
		Counters:       counters,
		FrontendOrigin: cfg.FrontendOrigin,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shut down")
	}
	if err := records.Close(ctx); err != nil {
		log.Error().Err(err).Msg("failed to close store")
	}
	closeLimiter()
	if err := statistics.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save statistics")
	}
	if err := counters.Close(); err != nil {
		log.Error().Err(err).Msg("failed to flush stats")
	}
}

// openStore connects to MongoDB when configured. Without it, or when the
// connection fails, records are kept in memory only.
func openStore(cfg *config.Config, counters *stats.Storage) store.Store {
	fallback := store.OnFallbackWrite(counters.RecordFallbackWrite)
	if cfg.Mongo.URI == "" {
		log.Info().Msg("MONGODB_URI not set, keeping analyses in memory")
		return store.NewFallbackStore(nil, nil, fallback)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mongo, err := store.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Error().Err(err).Msg("mongodb unavailable, keeping analyses in memory")
		return store.NewFallbackStore(nil, nil, fallback)
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
	return store.NewFallbackStore(mongo, nil, fallback)
}

// openLimiter prefers a shared Redis window so limits hold across replicas
func openLimiter(cfg *config.Config) (middleware.Limiter, func()) {
	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		limiter, err := middleware.NewRedisLimiter(ctx, cfg.Redis.URL, cfg.RateLimit.Max, cfg.RateLimit.Window)
		if err == nil {
			log.Info().Msg("rate limiting through redis")
			return limiter, func() {
				if err := limiter.Close(); err != nil {
					log.Warn().Err(err).Msg("failed to close redis limiter")
				}
			}
		}
		log.Error().Err(err).Msg("redis unavailable, rate limiting in process")
	}
	return middleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window), func() {}
}
