package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"uberfix/internal/config"
	"uberfix/internal/events"
	"uberfix/internal/observability"
	"uberfix/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	minioClient, err := storage.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}

	openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := storage.Open(openCtx, cfg.StorageDriver, cfg.StorageDSN())
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)
	if cfg.MetricsPort != "" {
		metricsSrv := observability.NewMetricsServer(cfg.MetricsPort, reg, logger)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer metricsSrv.Close()
	}

	indexer := &events.AttachmentIndexer{Store: store, Metrics: metrics, Logger: logger}
	source := events.NewMinioAttachmentEventSource(minioClient, cfg.MinioBucket,
		events.WithIgnoredPrefixes(cfg.AttachmentIgnorePrefixes...))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("event-handler listening for object-created events", zap.String("bucket", cfg.MinioBucket))
	err = source.Run(ctx, func(parent context.Context, event events.AttachmentEvent) error {
		handleCtx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()

		if err := indexer.Handle(handleCtx, event); err != nil {
			// One bad record must not stop the stream.
			logger.Error("index attachment", zap.String("object_key", event.ObjectKey), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		logger.Fatal("event-handler stopped with error", zap.Error(err))
	}
}
