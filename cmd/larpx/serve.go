package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"larpx402/internal/aggregator"
	"larpx402/internal/api"
	"larpx402/internal/imagegen"
	"larpx402/internal/observability"
	"larpx402/internal/realtime"
	"larpx402/internal/solana"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the launch API, gallery stream and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a)
		},
	}
	f := cmd.Flags()
	f.String("http-addr", "", "API listen address")
	f.String("metrics-addr", "", "Prometheus metrics listen address")
	f.String("storage", "", "storage backend: memory or postgres")
	f.String("postgres-dsn", "", "PostgreSQL connection string")
	f.String("clickhouse-dsn", "", "ClickHouse connection string for scan history")
	bindFlags(a.v, f, map[string]string{
		"http-addr":      "http_addr",
		"metrics-addr":   "metrics_addr",
		"storage":        "storage.backend",
		"postgres-dsn":   "postgres_dsn",
		"clickhouse-dsn": "clickhouse_dsn",
	})
	return cmd
}

func runServe(parent context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg, logger := a.cfg, a.logger

	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	wsConfig := solana.DefaultWSConfig()
	wsConfig.Logger = logger.Named("ws")
	clients, err := solana.NewClients(ctx, cfg.Network, cfg.Endpoints(), &wsConfig)
	if err != nil {
		return err
	}
	defer clients.Close()

	if cfg.AggregatorAPIKey == "" {
		logger.Warn("aggregator.api_key is empty; launch preparation requests will be rejected upstream")
	}
	opts := api.Options{
		API:      aggregator.NewClient(cfg.AggregatorURL, cfg.AggregatorAPIKey, aggregator.WithLogger(logger.Named("aggregator"))),
		Ledger:   clients.RPC,
		Launches: stores.launches,
		Scans:    stores.scans,
		Network:  cfg.Network,
		Backend:  cfg.StorageBackend,
		Logger:   logger,
	}
	if cfg.ImageGenURL != "" {
		opts.Images = imagegen.NewClient(cfg.ImageGenURL, cfg.ImageGenAPIKey, imagegen.WithLogger(logger.Named("imagegen")))
	}

	hub := realtime.NewHub(logger)
	opts.Stream = http.HandlerFunc(hub.ServeWS)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(opts).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", observability.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return stores.feed(gctx, hub.Publish) })
	g.Go(func() error { return listen(apiSrv, logger, "api") })
	g.Go(func() error { return listen(metricsSrv, logger, "metrics") })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiSrv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	logger.Info("serving",
		zap.String("network", string(cfg.Network)),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend))

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func listen(srv *http.Server, logger *zap.Logger, name string) error {
	logger.Info("listening", zap.String("server", name), zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
