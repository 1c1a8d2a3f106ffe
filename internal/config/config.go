package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port string
	// Usage limits
	DailyLimit     int64
	MonthlyLimit   int64
	DisableOnLimit bool
	// Redis (counters, failure ledger, fallback cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Postgres (failure history, optional)
	DatabaseURL string
	// Fallback snapshot
	SnapshotBaseURL string
	RefreshInterval time.Duration
	// Per-type fallback cache TTLs
	StockCacheTTL time.Duration
	FundCacheTTL  time.Duration
	RateCacheTTL  time.Duration
	// Exchange rate provider
	RateAPIBase    string
	RateAPIKey     string
	RequestTimeout time.Duration
	// GitHub export
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string
	GitHubToken  string
	// Alerts
	AlertWebhookURL string
	// Worker
	WorkerPoll time.Duration
	ExportHour int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func boolDef(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func durMS(key string, defMS int) time.Duration {
	return time.Duration(atoiDef(getEnv(key, strconv.Itoa(defMS)), defMS)) * time.Millisecond
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:             getEnv("ENV", "local"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnv("PORT", "8080"),
		DailyLimit:      int64(atoiDef(getEnv("USAGE_DAILY_LIMIT", "5000"), 5000)),
		MonthlyLimit:    int64(atoiDef(getEnv("USAGE_MONTHLY_LIMIT", "100000"), 100000)),
		DisableOnLimit:  boolDef(getEnv("USAGE_DISABLE_ON_LIMIT", "false"), false),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         atoiDef(getEnv("REDIS_DB", "0"), 0),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SnapshotBaseURL: getEnv("SNAPSHOT_BASE_URL", "https://raw.githubusercontent.com/portfolio-wise/fallback-data/main"),
		RefreshInterval: durMS("SNAPSHOT_REFRESH_MS", 60*60*1000),
		StockCacheTTL:   durMS("CACHE_TTL_STOCK_MS", 60*60*1000),
		FundCacheTTL:    durMS("CACHE_TTL_FUND_MS", 3*60*60*1000),
		RateCacheTTL:    durMS("CACHE_TTL_RATE_MS", 60*60*1000),
		RateAPIBase:     getEnv("RATE_API_BASE", "https://open.er-api.com/v6"),
		RateAPIKey:      getEnv("RATE_API_KEY", ""),
		RequestTimeout:  durMS("REQUEST_TIMEOUT_MS", 5000),
		GitHubOwner:     getEnv("GITHUB_OWNER", "portfolio-wise"),
		GitHubRepo:      getEnv("GITHUB_REPO", "fallback-data"),
		GitHubBranch:    getEnv("GITHUB_BRANCH", "main"),
		GitHubToken:     getEnv("GITHUB_TOKEN", ""),
		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
		WorkerPoll:      durMS("WORKER_POLL_MS", 15*60*1000),
		ExportHour:      atoiDef(getEnv("EXPORT_HOUR_UTC", "3"), 3),
	}
}
