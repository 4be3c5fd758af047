package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"uberfix/internal/config"
	"uberfix/internal/domain"
	"uberfix/internal/notify"
	"uberfix/internal/observability"
	"uberfix/internal/storage"
	appTemporal "uberfix/internal/temporal"
)

const gatewayName = "notify-gateway"

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := storage.Open(ctx, cfg.StorageDriver, cfg.StorageDSN())
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.InitMetrics(reg)

	activities := &appTemporal.Activities{Store: store, Metrics: metrics}
	if cfg.NotifyGatewayURL != "" {
		settings := notify.DefaultBreakerSettings()
		settings.OnStateChange = func(state float64) {
			metrics.SetBreakerState(gatewayName, state)
			logger.Warn("notification gateway breaker changed state", zap.Float64("state", state))
		}
		activities.Sender = notify.NewHTTPClient(cfg.NotifyGatewayURL, cfg.NotifyGatewayToken, time.Duration(cfg.NotifyTimeoutSec)*time.Second, settings)
		metrics.SetBreakerState(gatewayName, 0)
	} else {
		logger.Warn("NOTIFY_GATEWAY_URL not set, notifications will be recorded as skipped")
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	if cfg.MetricsPort != "" {
		metricsSrv := observability.NewMetricsServer(cfg.MetricsPort, reg, logger)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer metricsSrv.Close()
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.StageNotificationWorkflow, workflow.RegisterOptions{Name: appTemporal.StageNotificationWorkflowName})
	w.RegisterActivity(activities.LoadRequestActivity)
	w.RegisterActivity(activities.RenderMessageActivity)
	w.RegisterActivity(activities.SendNotificationActivity)
	w.RegisterActivity(activities.RecordNotificationActivity)

	logger.Info("worker running", zap.String("task_queue", cfg.TemporalTaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
}
