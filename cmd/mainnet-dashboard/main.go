package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Application
	applicationPort "github.com/dreschagin/mainnet-dashboard/internal/application/port"
	"github.com/dreschagin/mainnet-dashboard/internal/application/usecase"

	// Domain
	"github.com/dreschagin/mainnet-dashboard/internal/domain/service"

	// Infrastructure
	redisCache "github.com/dreschagin/mainnet-dashboard/internal/infrastructure/cache/redis"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/catalog"
	natsInfra "github.com/dreschagin/mainnet-dashboard/internal/infrastructure/messaging/nats"
	wsInfra "github.com/dreschagin/mainnet-dashboard/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/poller"
	s3storage "github.com/dreschagin/mainnet-dashboard/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/mainnet-dashboard/internal/interfaces/http"
	"github.com/dreschagin/mainnet-dashboard/internal/interfaces/http/handler"
	"github.com/dreschagin/mainnet-dashboard/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/mainnet-dashboard/pkg/config"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.Server.LogLevel)
	log.Info("Starting Mainnet Dashboard", "force_demo_data", cfg.Freshness.ForceDemoData)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// 3. Observability: CloudWatch логи и метрики
	var (
		logsPublisher    *cloudwatch.LogsPublisher
		metricsPublisher applicationPort.MetricsPublisher
	)
	if cfg.CloudWatch.Enabled {
		logsPublisher, err = cloudwatch.NewLogsPublisher(initCtx, cloudwatch.LogsPublisherConfig{
			LogGroupName:    cfg.CloudWatch.LogGroup,
			LogStreamName:   cfg.CloudWatch.LogStream,
			Region:          cfg.AWS.Region,
			Endpoint:        cfg.AWS.Endpoint,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Service:         "mainnet-dashboard",
			FlushInterval:   cfg.CloudWatch.FlushInterval,
			AutoCreate:      true,
		})
		if err != nil {
			log.Error("Failed to initialize CloudWatch logs publisher", err)
			os.Exit(1)
		}
		log.SetLogPublisher(logsPublisher, cfg.CloudWatch.LogLevel)

		publisherImpl, initErr := cloudwatch.NewMetricsPublisher(initCtx, cloudwatch.MetricsPublisherConfig{
			Namespace:       cfg.CloudWatch.Namespace,
			Region:          cfg.AWS.Region,
			Endpoint:        cfg.AWS.Endpoint,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			FlushInterval:   cfg.CloudWatch.FlushInterval,
			OnFlushError: func(err error) {
				log.Warn("CloudWatch metrics flush failed", "error", err.Error())
			},
		})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", initErr)
			os.Exit(1)
		}
		metricsPublisher = publisherImpl
		log.Info("CloudWatch publishers initialized", "namespace", cfg.CloudWatch.Namespace)
	} else {
		log.Debug("CloudWatch publishing is disabled")
	}

	// 4. Каталог фидов и demo payload
	cat, err := catalog.Load(cfg.Freshness.FeedsConfigPath)
	if err != nil {
		log.Error("Failed to load feed catalog", err)
		os.Exit(1)
	}
	if cfg.S3Demo.Enabled {
		storage, initErr := s3storage.NewDemoPayloadStorage(initCtx, s3storage.Config{
			Bucket:          cfg.S3Demo.Bucket,
			Prefix:          cfg.S3Demo.Prefix,
			Region:          cfg.AWS.Region,
			Endpoint:        cfg.S3Demo.Endpoint,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			UsePathStyle:    cfg.S3Demo.UsePathStyle,
		})
		if initErr != nil {
			log.Error("Failed to initialize S3 demo payload storage", initErr)
			os.Exit(1)
		}
		applied := cat.ApplyDemoOverrides(initCtx, storage, log)
		log.Info("Demo payload overrides applied", "bucket", cfg.S3Demo.Bucket, "count", applied)
	}

	// 5. Domain Layer
	controller, err := service.NewFreshnessController(service.ControllerConfig{
		MaxCacheAge:          cfg.Freshness.MaxCacheAge,
		MaxConsecutiveErrors: cfg.Freshness.MaxConsecutiveErrors,
		ForceDemoData:        cfg.Freshness.ForceDemoData,
	}, cat.FeedSpecs())
	if err != nil {
		log.Error("Failed to create freshness controller", err)
		os.Exit(1)
	}
	validator := service.NewPayloadValidator(int(cfg.Upstream.MaxBodyBytes))
	aggregator := service.NewAvailabilityAggregator()

	// 6. Infrastructure Layer: история, кеш, брокер
	history, err := openHistory(initCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize transition history", err, "backend", cfg.History.Backend)
		os.Exit(1)
	}
	defer history.Close()

	var cache applicationPort.Cache
	if cfg.Redis.Enabled {
		cacheImpl, initErr := redisCache.NewRedisCache(redisCache.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.CacheTTL,
		})
		if initErr != nil {
			log.Warn("Failed to connect to Redis, continuing without history cache", "error", initErr.Error())
		} else {
			cache = cacheImpl
			defer cache.Close()
			log.Info("Redis history cache initialized", "ttl", cfg.Redis.CacheTTL.String())
		}
	}

	var eventPublisher applicationPort.EventPublisher
	if cfg.NATS.Enabled {
		publisherImpl, initErr := natsInfra.NewNATSPublisher(natsInfra.Config{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, log)
		if initErr != nil {
			log.Warn("Failed to connect to NATS, continuing without event publishing", "error", initErr.Error())
		} else {
			eventPublisher = publisherImpl
			defer eventPublisher.Close()
			log.Info("NATS event publisher initialized", "url", cfg.NATS.URL)
		}
	}

	hub := wsInfra.NewHub(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics := metrics.New(registry)

	// 7. Application Layer (Use Cases)
	reportUC := usecase.NewReportPollResultUseCase(controller, validator, usecase.ReportPollResultDeps{
		Repository:    history.repo,
		Publisher:     eventPublisher,
		Notifier:      hub,
		Metrics:       metricsPublisher,
		Observer:      promMetrics,
		HistoryCache:  cache,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
	}, log)
	getStateUC := usecase.NewGetFreshnessStateUseCase(controller)
	getHistoryUC := usecase.NewGetTransitionHistoryUseCase(history.repo, controller, aggregator, cache, log)

	// 8. Poller
	feeds, err := poller.FeedsFromCatalog(cat, poller.SourceOptions{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		MaxBodyBytes:   cfg.Upstream.MaxBodyBytes,
		RateLimitRPS:   cfg.Upstream.RateLimitRPS,
		RateLimitBurst: cfg.Upstream.RateLimitBurst,
		NodeDiskMount:  cfg.Upstream.NodeDiskMount,
	})
	if err != nil {
		log.Error("Failed to build feed fetchers", err)
		os.Exit(1)
	}
	feedPoller, err := poller.New(feeds, reportUC, controller, poller.Config{
		MaxRetries:       cfg.Poller.MaxRetries,
		BaseDelay:        cfg.Poller.RetryBaseDelay,
		MaxDelay:         cfg.Poller.RetryMaxDelay,
		RequestTimeout:   cfg.Upstream.RequestTimeout,
		DegradedInterval: cfg.Poller.DegradedInterval,
	}, log)
	if err != nil {
		log.Error("Failed to create poller", err)
		os.Exit(1)
	}

	// 9. Interfaces Layer (HTTP Handlers)
	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}
	router := httpInterface.NewRouter(
		httpInterface.Handlers{
			Dashboard: handler.NewDashboardHandler(getStateUC, log),
			WebSocket: handler.NewWebSocketHandler(hub, getStateUC, cfg.Security.AllowedOrigins, authConfig, log),
			Freshness: handler.NewFreshnessAPIHandler(getStateUC, getHistoryUC, cfg.History.DefaultDuration, cfg.History.MaxQueryRange, log),
			Poller:    handler.NewPollerAPIHandler(feedPoller, controller.ForcedByConfig(), cfg.Upstream.RequestTimeout*time.Duration(cfg.Poller.MaxRetries+2), log),
			Auth:      handler.NewAuthAPIHandler(authConfig, promMetrics, log),
		},
		controller,
		promMetrics,
		registry,
		cfg.Security,
		log,
	)

	// 10. Запускаем фоновые процессы
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	log.Info("WebSocket hub started")

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		if controller.ForcedByConfig() {
			log.Warn("FORCE_DEMO_DATA is set, upstream polling is disabled")
		}
		feedPoller.Start(ctx)
	}()

	if history.retention != nil {
		go runRetention(ctx, history.retention, cfg.History, log)
	}

	// 11. HTTP сервер
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		log.Info("Dashboard available at http://localhost:" + cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 12. Ожидаем сигнал для graceful shutdown
	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		log.Error("HTTP server failed", err)
		exitCode = 1
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		log.Warn("Poller did not stop before shutdown timeout")
	}

	if metricsPublisher != nil {
		if err := metricsPublisher.Flush(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch metrics", err)
		}
	}

	log.Info("Server stopped gracefully")

	// logger закрываем последним: он отправляет хвост буфера в CloudWatch
	if err := log.Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush log publisher: %v\n", err)
	}
	if logsPublisher != nil {
		_ = logsPublisher.Close(shutdownCtx)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
