package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/geo-cascade-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/geo-cascade-service/internal/adapter/kafka"
	"github.com/couchcryptid/geo-cascade-service/internal/adapter/memory"
	"github.com/couchcryptid/geo-cascade-service/internal/config"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
	"github.com/couchcryptid/geo-cascade-service/internal/session"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP session API and map command publisher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, cleanup, err := buildDataService(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build data service", "error", err)
		return err
	}
	defer cleanup()

	var maps session.MapFactory
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		maps = publisher
		logger.Info("map commands published to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaMapTopic)
	} else {
		maps = memory.NewMaps(logger)
		logger.Info("kafka disabled, map commands recorded in memory")
	}

	registry := session.NewRegistry(data, maps, session.Options{
		Cascade:       cascadeOptions(cfg),
		IdleTTL:       cfg.SessionIdleTTL,
		SweepInterval: cfg.SessionSweepInterval,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, registry, registry, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if publisher != nil {
		if cerr := publisher.Close(); cerr != nil {
			logger.Error("kafka publisher close error", "error", cerr)
		}
	}
	if err != nil {
		logger.Error("service stopped with error", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
