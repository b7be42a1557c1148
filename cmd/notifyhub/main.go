// cmd/notifyhub/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/api"
	"notifyhub/internal/channels"
	"notifyhub/internal/common/aws"
	"notifyhub/internal/common/config"
	"notifyhub/internal/common/database"
	"notifyhub/internal/common/httpclient"
	"notifyhub/internal/common/logger"
	"notifyhub/internal/common/observability"
	"notifyhub/internal/notify"
	"notifyhub/internal/storage"
	"notifyhub/internal/storage/postgres"
	"notifyhub/internal/storage/search"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	zapLog.Info("Starting notifyhub...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	// Reopen the logger with the configured level and format.
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (optional) ---
	var searcher storage.Searcher
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		searcher = search.NewIndex(esClient.Client, cfg.Database.Elasticsearch.Index)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Channel adapters ---
	adapters := []channels.Adapter{channels.NewInAppAdapter()}

	if cfg.Integrations.AWS.SES.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		adapters = append(adapters, channels.NewEmailAdapter(
			sesClient,
			cfg.Integrations.AWS.SES.FromEmail,
			cfg.Integrations.AWS.SES.RateLimit,
		))
		zapLog.Info("email channel enabled")
	}

	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		adapters = append(adapters,
			channels.NewSMSAdapter(
				snsClient,
				cfg.Integrations.AWS.SNS.DefaultSMSSenderID,
				cfg.Integrations.AWS.SNS.RateLimit,
			),
			channels.NewPushAdapter(snsClient),
		)
		zapLog.Info("sms and push channels enabled")
	}

	if cfg.Integrations.Chat.Enabled {
		chatClient := httpclient.NewClient(time.Duration(cfg.Integrations.Chat.Timeout) * time.Millisecond)
		adapters = append(adapters, channels.NewChatAdapter(chatClient, cfg.Integrations.Chat.WebhookURL))
		zapLog.Info("chat channel enabled")
	}

	// --- Stores and pipeline ---
	stores := notify.Stores{
		Notifications: postgres.NewNotificationStore(pg.DB),
		Preferences:   postgres.NewPreferenceStore(pg.DB),
		Templates:     postgres.NewTemplateStore(pg.DB),
		Deliveries:    postgres.NewDeliveryLogStore(pg.DB),
		Schedules:     postgres.NewScheduleStore(pg.DB),
		Searcher:      searcher,
	}

	caps := notify.NewCapTracker(rdb.Client, log)
	resolver := notify.NewResolver(stores.Preferences, caps, log)
	renderer := notify.NewRenderer(stores.Templates,
		time.Duration(cfg.Notifications.TemplateCacheTTL)*time.Millisecond, log)
	deduper := notify.NewDeduper(rdb.Client, stores.Notifications,
		time.Duration(cfg.Notifications.DedupWindow)*time.Millisecond, log)
	dispatcher := notify.NewDispatcher(adapters, stores.Deliveries, log)

	svc := notify.NewService(cfg.Notifications, stores, resolver, renderer, deduper, dispatcher, obs, log)

	workers := notify.NewWorkers(svc, cfg.Notifications, log)
	workers.Start(ctx)
	zapLog.Info("dispatch workers started",
		zap.Int("workers", cfg.Notifications.DispatchWorkers),
		zap.Int("queueSize", cfg.Notifications.QueueSize),
	)

	// --- HTTP server ---
	router := api.NewRouter(svc, func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pg.Ping(pingCtx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := rdb.Ping(pingCtx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Millisecond)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	workers.Stop()

	zapLog.Info("notifyhub stopped gracefully")
}
