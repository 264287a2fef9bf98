package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mindora-health/mindora-platform/internal/api/router"
	"github.com/mindora-health/mindora-platform/internal/availability"
	"github.com/mindora-health/mindora-platform/internal/booking"
	appconfig "github.com/mindora-health/mindora-platform/internal/config"
	"github.com/mindora-health/mindora-platform/internal/gcal"
	"github.com/mindora-health/mindora-platform/internal/http/handlers"
	"github.com/mindora-health/mindora-platform/internal/notify"
	"github.com/mindora-health/mindora-platform/internal/observability/metrics"
	sched "github.com/mindora-health/mindora-platform/internal/sync"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting mindora-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid platform timezone", "tz", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	// Stores
	recordStore := availability.NewStore(pool)
	blockStore := availability.NewBlockStore(pool)
	sessionStore := booking.NewStore(pool, logger)
	connectionStore := gcal.NewConnectionStore(pool)

	// Busy-interval cache (optional)
	var busyCache *gcal.BusyCache
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		busyCache = gcal.NewBusyCache(redis.NewClient(opts))
	}

	calendarClient := gcal.NewGoogleClient(gcal.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
	}, loc, logger)

	resolver, err := gcal.NewResolver(gcal.ResolverConfig{
		Client:        calendarClient,
		Connections:   connectionStore,
		Cache:         busyCache,
		SystemMarkers: cfg.SystemEventNames,
		Metrics:       metrics.NewCalendarMetrics(nil),
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to build busy-interval resolver", "error", err)
		os.Exit(1)
	}

	availabilitySvc, err := availability.NewService(availability.ServiceConfig{
		Records:  recordStore,
		Blocks:   blockStore,
		Bookings: sessionStore,
		Busy:     resolver,
		Location: loc,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to build availability service", "error", err)
		os.Exit(1)
	}

	notifier := notify.NewService(buildEmailSender(ctx, cfg, logger), notify.NewClientStore(pool), loc, logger)

	bookingMetrics := metrics.NewBookingMetrics(nil)
	bookingSvc, err := booking.NewService(booking.ServiceConfig{
		Sessions: sessionStore,
		Slots:    availabilitySvc,
		Records:  recordStore,
		Notifier: notifier,
		Metrics:  bookingMetrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to build booking service", "error", err)
		os.Exit(1)
	}

	syncMetrics := metrics.NewSyncMetrics(nil)
	scheduler, err := sched.NewScheduler(sched.SchedulerConfig{
		Busy:       resolver,
		Providers:  connectionStore,
		Records:    recordStore,
		Interval:   cfg.SyncInterval,
		WindowDays: cfg.SyncWindowDays,
		Cooldown:   cfg.SyncCooldown,
		BatchSize:  cfg.SyncBatchSize,
		BatchPause: cfg.SyncBatchPause,
		Location:   loc,
		Metrics:    syncMetrics,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build sync scheduler", "error", err)
		os.Exit(1)
	}

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go scheduler.Start(schedulerCtx)

	r := router.New(&router.Config{
		Logger:             logger,
		Availability:       handlers.NewAvailabilityHandler(availabilitySvc, recordStore, blockStore, logger),
		Booking:            handlers.NewBookingHandler(bookingSvc, logger),
		Sync:               handlers.NewSyncHandler(scheduler, logger),
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
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
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildEmailSender picks the configured delivery channel; confirmations are
// silently disabled when none is configured.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config, email disabled", "error", err)
			return nil
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
	case "stub":
		return notify.NewStubEmailSender(logger)
	}
	logger.Info("email notifications disabled")
	return nil
}
