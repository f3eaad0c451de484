package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the API server
type Config struct {
	Port           string
	GinMode        string
	Environment    string
	LogLevel       string
	DataDir        string
	DevMode        bool
	FrontendOrigin string

	Fetch     FetchConfig
	RateLimit RateLimitConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	External  ExternalConfig
}

// FetchConfig controls the outbound page fetch
type FetchConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// RateLimitConfig bounds /analyze calls per client IP
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

// MongoConfig holds the document store connection. An empty URI disables it.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds the rate limiter backend. An empty URL keeps limits in process.
type RedisConfig struct {
	URL string
}

// ExternalConfig holds credentials for optional collaborators.
// Any empty key turns the matching collaborator off.
type ExternalConfig struct {
	PageSpeedKey      string
	PageSpeedStrategy string
	NewsAPIKey        string
	OpenPageRankKey   string
	SafeBrowsingKey   string
	UptimeRobotKey    string
}

// Load loads configuration from .env files and environment variables
func Load() *Config {
	loadEnv()

	return &Config{
		Port:           getEnv("PORT", "8082"),
		GinMode:        getEnv("GIN_MODE", "release"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DataDir:        getEnv("DATA_DIR", "data"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		FrontendOrigin: getEnv("FRONTEND_ORIGIN", ""),
		Fetch: FetchConfig{
			Timeout:   getEnvAsDuration("FETCH_TIMEOUT", 15*time.Second),
			UserAgent: getEnv("USER_AGENT", "RankProBot/1.0"),
		},
		RateLimit: RateLimitConfig{
			Max:    getEnvAsInt("RATE_LIMIT_MAX", 12),
			Window: getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGODB_URI", ""),
			Database: getEnv("MONGODB_DB", "rankpro"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		External: ExternalConfig{
			PageSpeedKey:      getEnv("PAGESPEED_KEY", ""),
			PageSpeedStrategy: getEnv("PAGESPEED_STRATEGY", "mobile"),
			NewsAPIKey:        getEnv("NEWS_API_KEY", ""),
			OpenPageRankKey:   getEnv("OPENPAGERANK_API_KEY", ""),
			SafeBrowsingKey:   getEnv("GOOGLE_SAFE_BROWSING_KEY", ""),
			UptimeRobotKey:    getEnv("UPTIMEROBOT_API_KEY", ""),
		},
	}
}

// BrandConfigured reports whether any brand collaborator has credentials.
func (c *Config) BrandConfigured() bool {
	e := c.External
	return e.NewsAPIKey != "" || e.OpenPageRankKey != "" || e.SafeBrowsingKey != ""
}

func loadEnv() {
	// Try to load .env.development first (for local development)
	if err := godotenv.Load(".env.development"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Debug().Msg("no .env file found, using environment variables")
		}
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("15s") or bare integers as seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
