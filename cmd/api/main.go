package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/confirmline/confirmline/internal/api/router"
	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/internal/callflow"
	"github.com/confirmline/confirmline/internal/calllog"
	"github.com/confirmline/confirmline/internal/callqueue"
	appconfig "github.com/confirmline/confirmline/internal/config"
	"github.com/confirmline/confirmline/internal/http/handlers"
	"github.com/confirmline/confirmline/internal/observability/metrics"
	"github.com/confirmline/confirmline/internal/schedule"
	"github.com/confirmline/confirmline/internal/store"
	"github.com/confirmline/confirmline/internal/telephony"
	"github.com/confirmline/confirmline/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting confirmline API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"telephony_configured", cfg.TelephonyConfigured(),
	)

	ctx := context.Background()
	healthChecks := map[string]func(context.Context) error{}

	// Postgres audit store (optional).
	var auditStore *store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		auditStore = store.NewStore(pool)
		if err := auditStore.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		healthChecks["postgres"] = pool.Ping
	} else {
		logger.Warn("DATABASE_URL not set; running without audit persistence")
	}

	// Redis call event log (optional).
	var eventLog *calllog.Store
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		eventLog = calllog.NewStore(redisClient)
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		logger.Warn("REDIS_ADDR not set; running without call event log")
	}

	registry := appointment.NewRegistry()
	callMetrics := metrics.NewCallMetrics(prometheus.DefaultRegisterer)

	window, err := telephony.NewCallWindow(cfg.CallWindowStart, cfg.CallWindowEnd, cfg.Timezone)
	if err != nil {
		logger.Error("invalid call window configuration", "error", err)
		os.Exit(1)
	}

	scripts := telephony.NewScriptBuilder(cfg.PracticeName, cfg.OfficeNumber, cfg.PublicBaseURL, cfg.TTSVoice, cfg.TTSInitialPause)
	gateway := telephony.NewTwilioGateway(telephony.TwilioGatewayConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
		BaseURL:    cfg.PublicBaseURL,
		AMDMode:    cfg.AMDMode,
	}, registry, scripts, window, logger)

	queue := callqueue.New(registry, gateway, logger)
	flow := callflow.NewService(registry, scripts, cfg.TwilioFromNumber, queue, eventLog, auditStore, callMetrics, logger)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Error("failed to create upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	uploadHandler := handlers.NewUploadHandler(handlers.UploadHandlerConfig{
		Registry:    registry,
		Parser:      schedule.NewParser(logger),
		Store:       auditStore,
		Logger:      logger,
		UploadDir:   cfg.UploadDir,
		MaxFileSize: cfg.MaxFileSize,
	})
	callHandler := handlers.NewCallHandler(handlers.CallHandlerConfig{
		Registry: registry,
		Gateway:  gateway,
		Queue:    queue,
		Events:   eventLog,
		Store:    auditStore,
		Metrics:  callMetrics,
		Logger:   logger,
	})

	webhookSecret := cfg.TwilioWebhookSecret
	if webhookSecret == "" {
		webhookSecret = cfg.TwilioAuthToken
	}
	twilioHandler := handlers.NewTwilioWebhookHandler(handlers.TwilioWebhookConfig{
		Flow:              flow,
		Scripts:           scripts,
		Metrics:           callMetrics,
		Logger:            logger,
		AuthToken:         webhookSecret,
		PublicBaseURL:     cfg.PublicBaseURL,
		ValidateSignature: cfg.Env == "production" || cfg.TwilioWebhookSecret != "",
	})

	r := router.New(&router.Config{
		Logger:             logger,
		Uploads:            uploadHandler,
		Calls:              callHandler,
		TwilioWebhooks:     twilioHandler,
		Health:             handlers.NewHealthHandler(cfg.TelephonyConfigured(), window, healthChecks),
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookBurst:       cfg.WebhookBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
