package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"uberfix/internal/api"
	"uberfix/internal/config"
	"uberfix/internal/domain"
	"uberfix/internal/observability"
	"uberfix/internal/storage"
	appTemporal "uberfix/internal/temporal"
	"uberfix/internal/workflow"
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

	if err := domain.ValidateGraph(); err != nil {
		logger.Fatal("stage graph is inconsistent", zap.Error(err))
	}

	policy, err := workflow.ParsePolicy(cfg.TransitionPolicy)
	if err != nil {
		logger.Fatal("parse transition policy", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg.StorageDriver, cfg.StorageDSN())
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("store ping", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.InitMetrics(reg)

	mutator := &workflow.Mutator{
		Store:    store,
		Recorder: metrics,
		Policy:   policy,
		Logger:   logger,
	}

	if cfg.NotifyEnabled {
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		if err != nil {
			logger.Fatal("connect temporal", zap.Error(err))
		}
		defer temporalClient.Close()

		mutator.Notifier = &appTemporal.StageNotifier{
			Client:    temporalClient,
			TaskQueue: cfg.TemporalTaskQueue,
			IDPrefix:  cfg.WorkflowIDPrefix,
			Channel:   domain.NotificationChannel(cfg.NotifyChannel),
			Debounce:  time.Duration(cfg.NotifyDebounceSec) * time.Second,
		}
	}

	opts := []api.HandlerOption{api.WithMetrics(metrics), api.WithLogger(logger)}
	if cfg.MinioAccessKey != "" {
		minioClient, err := storage.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			logger.Fatal("connect minio", zap.Error(err))
		}
		blob, err := storage.NewMinioStore(ctx, minioClient, cfg.MinioBucket)
		if err != nil {
			logger.Fatal("prepare attachment bucket", zap.String("bucket", cfg.MinioBucket), zap.Error(err))
		}
		opts = append(opts, api.WithBlobStore(blob))
	} else {
		logger.Warn("MINIO_ACCESS_KEY not set, attachment uploads disabled")
	}

	h := api.NewHandler(cfg, store, mutator, opts...)
	router := api.NewRouter(h, api.RouterDeps{
		Logger:   logger,
		Metrics:  metrics,
		Gatherer: reg,
		ReadyChecks: map[string]observability.CheckFunc{
			"store": store.Ping,
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			zap.String("port", cfg.HTTPPort),
			zap.String("storage", cfg.StorageDriver),
			zap.String("policy", string(policy)),
			zap.Bool("notify", cfg.NotifyEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
