package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/flashsale/internal/config"
	transporthttp "github.com/cimillas/flashsale/internal/transport/http"
	"github.com/cimillas/flashsale/internal/transport/kafka"
	"github.com/cimillas/flashsale/internal/worker"
	"github.com/cimillas/flashsale/migrations"
)

func newServeCommand(state *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, background workers and the optional payment consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, state.cfg, state.logger)
		},
	}
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagRedisAddr, "", "Redis address for the shared stock cache")
	cmd.Flags().String(flagKafkaBrokers, "", "comma-separated Kafka brokers for payment notifications")
	cmd.Flags().String(flagCORSOrigins, "", "comma-separated allowed CORS origins")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	applied, err := migrations.Apply(ctx, rt.pool)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("names", applied))
	}

	gin.SetMode(gin.ReleaseMode)
	router := transporthttp.NewRouter(transporthttp.RouterConfig{
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
		Metrics:        rt.metricsHandler(),
	}, transporthttp.Handlers{
		Products: rt.catalog,
		Holds:    rt.holds,
		Sweeper:  rt.reaper,
		Orders:   rt.orders,
		Payments: rt.settlement,
		Pending:  rt.settlement,
	})
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	scheduler := worker.NewScheduler(logger,
		worker.SweepJob(rt.reaper, cfg.SweepInterval),
		worker.ReconcileJob(rt.settlement, cfg.ReconcileInterval),
		worker.PruneJob(rt.settlement, cfg.ReconcileInterval),
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("api listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("server shutdown error", zap.Error(err))
		}
		return nil
	})
	group.Go(func() error {
		return scheduler.Run(ctx)
	})
	if len(cfg.KafkaBrokers) > 0 {
		consumer := kafka.NewConsumer(
			kafka.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID),
			rt.settlement,
			kafka.WithLogger(logger))
		group.Go(func() error {
			defer consumer.Close()
			logger.Info("consuming payment notifications",
				zap.Strings("brokers", cfg.KafkaBrokers),
				zap.String("topic", cfg.KafkaTopic))
			return consumer.Run(ctx)
		})
	}

	err = group.Wait()
	logger.Info("server stopped")
	return err
}
