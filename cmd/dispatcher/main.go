package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/config"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/consumer"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/handlers"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/repository"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/routes"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/services"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/logger"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/metrics"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/rabbitmq"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/retry"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var dispatchActions = []string{
	models.ActionWhatsAppSent,
	models.ActionMessageRetry,
	models.ActionLimitReached,
	models.ActionMessageFailed,
	models.ActionMessageDeferred,
	models.ActionMessageRequeued,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("starting whatsapp dispatcher", slog.String("app", cfg.AppName), slog.String("db_driver", cfg.DBDriver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupRetry := retry.Config{
		MaxAttempts:    cfg.StartupAttempts,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		JitterFactor:   0.2,
	}

	var db *gorm.DB
	err = retry.Do(ctx, startupRetry, func() error {
		opened, err := repository.OpenDatabase(cfg.DBDriver, cfg.DatabaseURL, cfg.LogLevel)
		if err != nil {
			logr.Warn("database not ready", slog.Any("error", err))
			return err
		}
		sqlDB, err := opened.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			logr.Warn("database ping failed", slog.Any("error", err))
			return err
		}
		db = opened
		return nil
	})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	var limitsCache repository.LimitsCache = repository.NewMemoryCache(cfg.LimitsCacheTTL)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = newRedisClient(cfg.RedisURL)
		redisRepo := repository.NewRedisRepository(redisClient, cfg.LimitsCacheTTL)
		limitsCache = redisRepo
		defer redisRepo.Close()
	}

	queueStore, err := repository.NewQueueStore(db)
	if err != nil {
		logr.Error("failed to init queue store", slog.Any("error", err))
		os.Exit(1)
	}
	ledger, err := repository.NewQuotaLedger(db, limitsCache, cfg.DefaultDailyLimit)
	if err != nil {
		logr.Error("failed to init quota ledger", slog.Any("error", err))
		os.Exit(1)
	}
	historyStore, err := repository.NewHistoryStore(db)
	if err != nil {
		logr.Error("failed to init history store", slog.Any("error", err))
		os.Exit(1)
	}

	var mqManager *rabbitmq.Manager
	var publisher services.EventPublisher
	if cfg.RabbitURL != "" {
		err = retry.Do(ctx, startupRetry, func() error {
			m, err := rabbitmq.NewManager(cfg.RabbitURL, logr)
			if err != nil {
				logr.Warn("rabbitmq not ready", slog.Any("error", err))
				return err
			}
			mqManager = m
			return nil
		})
		if err != nil {
			logr.Error("failed to connect rabbitmq", slog.Any("error", err))
			os.Exit(1)
		}
		defer mqManager.Close()

		bindings := map[string][]string{}
		if cfg.EventsAuditQueue != "" {
			bindings[cfg.EventsAuditQueue] = dispatchActions
		}
		if err := mqManager.DeclareTopology(cfg.EventsExchange, bindings, ""); err != nil {
			logr.Error("failed to declare rabbitmq topology", slog.Any("error", err))
			os.Exit(1)
		}
		publisher = services.NewPublisher(mqManager.Connection(), cfg.EventsExchange)
	}

	metricsCollector := metrics.New()
	gateway := services.NewGatewayClient(services.GatewaySettings{
		URL:             cfg.GatewayURL,
		APIKey:          cfg.GatewayKey,
		Timeout:         cfg.GatewayTimeout,
		BreakerFailures: uint32(max(cfg.GatewayBreakerFailures, 0)),
		BreakerCooldown: cfg.GatewayBreakerCooldown,
	}, logr)
	auditSink := services.NewAuditSink(historyStore, publisher, logr)

	worker := services.NewDispatchWorker(
		queueStore,
		ledger,
		gateway,
		auditSink,
		metricsCollector,
		logr,
		services.WorkerConfig{
			MaxRetries:    cfg.MaxRetries,
			BaseBackoff:   cfg.RetryBaseBackoff,
			MaxBackoff:    cfg.RetryMaxBackoff,
			QuotaPolicy:   cfg.QuotaPolicy,
			QuotaLocation: cfg.QuotaLocation(),
			DeferJitter:   cfg.QuotaDeferJitter,
			StaleAfter:    cfg.StaleAfter,
		},
	)

	if cfg.TriggerToken == "" {
		logr.Warn("DISPATCH_TRIGGER_TOKEN is empty; /v1 endpoints will reject every request")
	}
	httpSrv := startHTTPServer(cfg, worker, ledger, historyStore, metricsCollector, redisClient, logr)

	var wg sync.WaitGroup
	if cfg.DispatchInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runTicker(ctx, worker, cfg.DispatchInterval, cfg.BatchSize, logr)
		}()
	}

	if mqManager != nil && cfg.TriggerQueue != "" {
		base := consumer.NewBaseConsumer(
			mqManager.Connection(),
			consumer.QueueBinding{
				Exchange:   cfg.TriggerExchange,
				Queue:      cfg.TriggerQueue,
				RoutingKey: cfg.TriggerRoutingKey,
				DLQ:        cfg.TriggerDLQ,
			},
			cfg.TriggerWorkers,
			cfg.TriggerWorkers,
			logr,
		)
		trigger := consumer.NewTriggerConsumer(base, worker, logr, cfg.BatchSize, cfg.MaxBatchSize)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := trigger.Start(ctx); err != nil {
				logr.Error("trigger consumer exited", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownHTTP(httpSrv, logr)
	wg.Wait()
	logr.Info("whatsapp dispatcher stopped")
}

func newRedisClient(raw string) *redis.Client {
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		if opts, err := redis.ParseURL(raw); err == nil {
			return redis.NewClient(opts)
		}
	}
	return redis.NewClient(&redis.Options{Addr: raw})
}

func startHTTPServer(
	cfg *config.Config,
	worker *services.DispatchWorker,
	ledger *repository.QuotaLedger,
	history *repository.HistoryStore,
	metricsCollector *metrics.Collector,
	redisClient *redis.Client,
	logr *slog.Logger,
) *http.Server {
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	today := func() string { return worker.QuotaDate(time.Now()) }
	routes.SetupRoutes(
		router,
		handlers.NewDispatchHandler(worker, cfg.MaxBatchSize, logr),
		handlers.NewQuotaHandler(ledger, history, today, logr),
		metricsCollector,
		logr,
		routes.Options{
			TriggerToken: cfg.TriggerToken,
			RateLimit:    cfg.TriggerRateLimit,
			RedisClient:  redisClient,
			Started:      time.Now(),
		},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func runTicker(ctx context.Context, worker *services.DispatchWorker, interval time.Duration, batch int, logr *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logr.Info("dispatch ticker started", slog.Duration("interval", interval), slog.Int("batch_size", batch))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary := worker.RunBatch(ctx, batch)
			if summary.Attempted > 1 || summary.Counts[models.OutcomeEmpty] == 0 {
				logr.Info("dispatch tick", slog.Int("attempted", summary.Attempted), slog.Any("counts", summary.Counts))
			}
		}
	}
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
