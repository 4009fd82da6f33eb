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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"appointment-booking-backend/config"
	"appointment-booking-backend/internal/api"
	"appointment-booking-backend/internal/booking"
	"appointment-booking-backend/internal/db"
	"appointment-booking-backend/internal/logging"
	"appointment-booking-backend/internal/notification"
	"appointment-booking-backend/internal/reminder"
	"appointment-booking-backend/internal/schedule"
	"appointment-booking-backend/internal/stats"
	"appointment-booking-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}
	logging.Init("booking-backend", cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("path", configPath).Str("timezone", cfg.Booking.Timezone).Msg("configuration loaded")

	var webpushOptions *webpush.Options
	if cfg.Notification.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Notification.Push.PublicKey,
			VAPIDPrivateKey: cfg.Notification.Push.PrivateKey,
			Subscriber:      cfg.Notification.Push.Subject,
			TTL:             cfg.Notification.Push.TTL,
		}
	} else {
		log.Warn().Msg("VAPID keys are not configured; web push is disabled")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var mailer notification.EmailSender = notification.LogSender{}
	if smtp := cfg.Notification.SMTP; smtp.Host != "" {
		mailer = notification.NewSMTPSender(smtp.Host, smtp.Port, smtp.Username, smtp.Password, smtp.From)
	} else {
		log.Warn().Msg("smtp.host is not set; emails are written to the log")
	}

	workers := notification.NewWorkerPool(gormDB, mailer, notification.Options{
		Size:         cfg.Notification.PoolSize,
		PollInterval: cfg.Notification.PollInterval,
		MaxAttempts:  cfg.Notification.MaxAttempts,
		Backoff:      time.Duration(cfg.Notification.BackoffSeconds) * time.Second,
		Lease:        time.Duration(cfg.Notification.LeaseSeconds) * time.Second,
		WebPush:      webpushOptions,
	})
	workers.Start(ctx)
	outbox := notification.NewOutbox(gormDB, workers)

	loc := cfg.Booking.Location
	bookingSvc := booking.NewService(appStore, outbox, booking.WithLocation(loc))
	scheduleSvc := schedule.NewService(appStore, loc, time.Now)
	aggregator := stats.NewAggregator(gormDB, loc)

	var reminders *reminder.Scheduler
	if cfg.Reminder.Enabled {
		reminders = reminder.NewScheduler(appStore, outbox, cfg.Reminder.Schedule, loc)
		if err := reminders.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start reminder scheduler")
		}
	}

	var rdb *redis.Client
	if cfg.Server.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Server.RedisAddr, Password: cfg.Server.RedisPassword})
		defer rdb.Close()
		log.Info().Str("addr", cfg.Server.RedisAddr).Msg("shared rate limiter enabled")
	}

	// Initialize router
	handler := api.NewHandler(appStore, bookingSvc, scheduleSvc, aggregator, webpushOptions)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:           []byte(cfg.Auth.JWTSecret),
		JWTIssuer:           cfg.Auth.Issuer,
		RateLimitPerSec:     cfg.Server.RateLimitPerSec,
		RateLimitBurst:      cfg.Server.RateLimitBurst,
		CacheTTL:            time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		Redis:               rdb,
		RedisLimitPerMinute: cfg.Server.RedisLimitPerMinute,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server Shutdown")
	}
	if reminders != nil {
		reminders.Stop()
	}
	cancel()

	log.Info().Msg("server gracefully stopped")
}
