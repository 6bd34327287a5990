package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avitonotify/notify-server-go/internal/config"
	"github.com/avitonotify/notify-server-go/internal/database"
	"github.com/avitonotify/notify-server-go/internal/dispatch"
	"github.com/avitonotify/notify-server-go/internal/handler"
	"github.com/avitonotify/notify-server-go/internal/jobs"
	"github.com/avitonotify/notify-server-go/internal/middleware"
	"github.com/avitonotify/notify-server-go/internal/redis"
	"github.com/avitonotify/notify-server-go/internal/repository"
	"github.com/avitonotify/notify-server-go/internal/service"
	"github.com/avitonotify/notify-server-go/internal/telegram"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	accountRepo := repository.NewAccountRepository(db.DB)
	linkRepo := repository.NewLinkRepository(db.DB)
	reminderRepo := repository.NewReminderRepository(db.DB)
	eventRepo := repository.NewEventRepository(db.DB)
	sentMessageRepo := repository.NewSentMessageRepository(db.DB)

	throttle := service.NewChatThrottle(redisClient, cfg.ChatThrottleLimit, cfg.ChatThrottleWindow())
	telegramClient := telegram.NewClient(cfg.TelegramBotToken, throttle, sentMessageRepo)
	ingestService := service.NewIngestService(accountRepo, linkRepo, reminderRepo, eventRepo)

	backoff, err := cfg.BackoffSchedule()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid reminder backoff")
	}

	coordinator := dispatch.NewCoordinator(
		linkRepo, reminderRepo, eventRepo, telegramClient, backoff, cfg.WorkerCount,
	)

	scanJob := jobs.NewScanJob(coordinator, cfg.ScanInterval(), cfg.ScanTimeout())
	scanJob.Start()
	defer scanJob.Stop()

	retentionJob := jobs.NewRetentionJob(
		sentMessageRepo, eventRepo, telegramClient, cfg.SentMessagesRetention(), cfg.RetentionCron,
	)
	if err := retentionJob.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start retention job")
	}
	defer retentionJob.Stop()

	webhookHandler := handler.NewWebhookHandler(ingestService)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/avito/webhook", webhookHandler.Avito)

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
