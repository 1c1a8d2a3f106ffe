package bootstrap

import (
	"context"

	"marketdata-service/internal/application"
	httpserver "marketdata-service/internal/infrastructure/http"
)

// InitAPI wires the full API server: redis store, optional failure
// history database, snapshot fetcher, alert sink and the four services.
func InitAPI(ctx context.Context) (*httpserver.Server, func(), error) {
	log := ProvideLogger()
	cfg := ProvideConfig()

	client, closeRedis, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, func() {}, err
	}
	db, closeDB, err := ProvideDB(ctx, log, cfg)
	if err != nil {
		closeRedis()
		return nil, func() {}, err
	}
	cleanup := func() {
		closeDB()
		closeRedis()
	}

	store := ProvideStore(client)
	sink := ProvideAlerts(cfg, log)
	fallback := ProvideFallbackService(cfg, store, db, sink, log)
	usage := ProvideUsageService(store, sink, cfg, log)
	priority := ProvidePriorityService(store, log)
	rates := ProvideRateService(cfg, ProvideRateAPI(cfg), fallback, priority, sink, log)

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return httpserver.NewServer(usage, fallback, rates, priority, ping), cleanup, nil
}

// InitWorker wires the background refresh/export worker.
func InitWorker(ctx context.Context) (application.Worker, func(), error) {
	log := ProvideLogger()
	cfg := ProvideConfig()

	client, closeRedis, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, func() {}, err
	}
	db, closeDB, err := ProvideDB(ctx, log, cfg)
	if err != nil {
		closeRedis()
		return nil, func() {}, err
	}
	cleanup := func() {
		closeDB()
		closeRedis()
	}

	store := ProvideStore(client)
	sink := ProvideAlerts(cfg, log)
	fallback := ProvideFallbackService(cfg, store, db, sink, log)
	return ProvideWorker(fallback, cfg, log), cleanup, nil
}
