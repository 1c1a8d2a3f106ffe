package bootstrap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"marketdata-service/internal/application"
	"marketdata-service/internal/config"
	"marketdata-service/internal/infrastructure/alerts"
	"marketdata-service/internal/infrastructure/github"
	"marketdata-service/internal/infrastructure/httpx"
	"marketdata-service/internal/infrastructure/logx"
	"marketdata-service/internal/infrastructure/pg"
	"marketdata-service/internal/infrastructure/provider"
	redisstore "marketdata-service/internal/infrastructure/redis"
	"marketdata-service/internal/infrastructure/snapshot"
	"marketdata-service/internal/infrastructure/worker"
	"marketdata-service/internal/retry"
)

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

func ProvideRedisClient(cfg config.Config) (*redis.Client, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

func ProvideStore(client *redis.Client) *redisstore.Store {
	return redisstore.New(client)
}

// ProvideDB connects the optional failure history database. A missing
// DATABASE_URL is not an error; the service degrades to the ledger-only
// statistics path.
func ProvideDB(ctx context.Context, log *zap.Logger, cfg config.Config) (*pg.DB, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, func() {}, nil
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, err
	}
	if err := pg.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, func() {}, err
	}
	cleanup := func() {
		if log != nil {
			log.Info("closing pg")
		}
		db.Close()
	}
	return db, cleanup, nil
}

func ProvideAlerts(cfg config.Config, log *zap.Logger) application.AlertSink {
	if cfg.AlertWebhookURL == "" {
		return application.NoopAlerts{}
	}
	return alerts.NewWebhookSink(cfg.AlertWebhookURL, cfg.RequestTimeout, log)
}

func ProvideUsageService(store *redisstore.Store, sink application.AlertSink, cfg config.Config, log *zap.Logger) *application.UsageService {
	return application.NewUsageService(store, sink, application.Limits{
		Daily:          cfg.DailyLimit,
		Monthly:        cfg.MonthlyLimit,
		DisableOnLimit: cfg.DisableOnLimit,
	}, application.WithUsageLogger(log))
}

func ProvidePriorityService(store *redisstore.Store, log *zap.Logger) *application.PriorityService {
	return application.NewPriorityService(store, store, application.WithPriorityLogger(log))
}

func ProvideFallbackService(cfg config.Config, store *redisstore.Store, db *pg.DB, sink application.AlertSink, log *zap.Logger) *application.FallbackService {
	fetcher := snapshot.NewFetcher(cfg.SnapshotBaseURL, httpx.New(cfg.RequestTimeout), log)

	opts := []application.FallbackOption{application.WithFallbackLogger(log)}
	if db != nil {
		opts = append(opts, application.WithFailureHistory(pg.NewFailureHistoryRepo(db)))
	}
	if cfg.GitHubToken != "" {
		contents, err := github.NewContentsClient(cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubBranch, cfg.GitHubToken, cfg.RequestTimeout)
		if err != nil {
			log.Warn("github export disabled", zap.Error(err))
		} else {
			opts = append(opts, application.WithContentsRepo(contents))
		}
	}

	return application.NewFallbackService(fetcher, store, store, sink, cfg.RefreshInterval, application.TTLs{
		Stock: cfg.StockCacheTTL,
		Fund:  cfg.FundCacheTTL,
		Rate:  cfg.RateCacheTTL,
	}, opts...)
}

func ProvideRateAPI(cfg config.Config) application.RateAPI {
	if cfg.RateAPIBase == "" {
		return provider.NewFake(1.2345)
	}
	return &provider.ERAPIProvider{
		BaseURL: cfg.RateAPIBase,
		APIKey:  cfg.RateAPIKey,
		Client:  httpx.New(cfg.RequestTimeout).HTTP,
	}
}

func ProvideRateService(cfg config.Config, api application.RateAPI, fallback *application.FallbackService, priority *application.PriorityService, sink application.AlertSink, log *zap.Logger) *application.RateService {
	return application.NewRateService(sink,
		application.WithRateAPI(api),
		application.WithRateFallback(fallback),
		application.WithRatePriority(priority),
		application.WithRateTimeout(cfg.RequestTimeout),
		application.WithRateRetry(retry.Options{MaxRetries: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}),
		application.WithRateLogger(log),
	)
}

func ProvideWorker(fallback *application.FallbackService, cfg config.Config, log *zap.Logger) application.Worker {
	return &worker.RefreshWorker{
		Fallback:   fallback,
		PollEvery:  cfg.WorkerPoll,
		ExportHour: cfg.ExportHour,
		Log:        log,
	}
}
