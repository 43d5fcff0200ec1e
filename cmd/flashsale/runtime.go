package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cimillas/flashsale/internal/app"
	"github.com/cimillas/flashsale/internal/cache"
	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/config"
	"github.com/cimillas/flashsale/internal/idempotency"
	"github.com/cimillas/flashsale/internal/ledger"
	"github.com/cimillas/flashsale/internal/logging"
	"github.com/cimillas/flashsale/internal/metrics"
	"github.com/cimillas/flashsale/internal/storage/postgres"
)

const startupTimeout = 5 * time.Second

// runtime is the fully wired service graph shared by every subcommand.
type runtime struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	registry *prometheus.Registry

	stock      *ledger.Ledger
	catalog    *app.CatalogService
	holds      *app.HoldService
	orders     *app.OrderService
	settlement *app.SettlementService
	reaper     *app.Reaper
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

func newRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (*runtime, error) {
	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	rt := &runtime{pool: pool, registry: prometheus.NewRegistry()}

	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewCollector(rt.registry)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	observer := app.Observers{logging.NewOperationLogger(logger), collector}

	clk := clock.NewSystem()
	var stockCache ledger.Cache = cache.NewMemory(clk)
	if cfg.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()
		if err := rt.redis.Ping(pingCtx).Err(); err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		stockCache = cache.NewRedis(rt.redis)
	}

	store := postgres.NewStore(pool, postgres.WithLockTimeout(cfg.LockTimeout))
	rt.stock = ledger.New(store, stockCache, clk,
		ledger.WithCacheTTL(cfg.StockCacheTTL),
		ledger.WithLogger(logger))

	rt.catalog = app.NewCatalogService(store, rt.stock, clk, app.WithCatalogObserver(observer))
	rt.holds = app.NewHoldService(store, rt.stock, clk,
		app.WithHoldTTL(cfg.HoldTTL),
		app.WithMaxHoldQuantity(cfg.MaxHoldQuantity),
		app.WithHoldObserver(observer))
	rt.orders = app.NewOrderService(store, rt.stock, clk, app.WithOrderObserver(observer))
	rt.settlement = app.NewSettlementService(store, idempotency.NewCache(store, clk), rt.stock, clk,
		app.WithCurrency(cfg.Currency),
		app.WithPendingWindow(cfg.PendingWebhookWindow),
		app.WithRetention(cfg.Retention),
		app.WithSettlementBatchSize(cfg.BatchSize),
		app.WithSettlementObserver(observer),
		app.WithSettlementLogger(logger))
	rt.reaper = app.NewReaper(store, rt.stock, clk,
		app.WithReaperBatchSize(cfg.BatchSize),
		app.WithReaperObserver(observer),
		app.WithReaperLogger(logger))

	return rt, nil
}

func (rt *runtime) metricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	rt.pool.Close()
}
