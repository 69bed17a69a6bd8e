package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/logger"
	"github.com/aman-churiwal/api-marketplace/internal/notify"
	"github.com/aman-churiwal/api-marketplace/internal/pubsub"
	"github.com/aman-churiwal/api-marketplace/internal/scheduler"
	"github.com/aman-churiwal/api-marketplace/internal/server"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/joho/godotenv"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("development", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	opts := server.Options{Logger: log}

	if cfg.Redis.Enabled() {
		redis, err := storage.NewRedis(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redis.Close()
		opts.Redis = redis
		log.Info().Str("addr", cfg.Redis.GetRedisAddr()).Msg("connected to redis")
	}

	if cfg.Storage.Enabled() {
		proofs, err := storage.NewS3ProofStore(ctx, cfg.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure proof storage")
		}
		opts.ProofStore = proofs
	}

	if cfg.Audit.GCPProjectID != "" {
		publisher, err := pubsub.NewPublisher(ctx, cfg.Audit.GCPProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create audit publisher")
		}
		defer publisher.Close()
		opts.Publisher = publisher
	}

	var notifier service.Notifier
	telegram, err := notify.NewTelegram(cfg.Notify, log)
	if err != nil {
		log.Warn().Err(err).Msg("telegram notifications disabled")
	} else if telegram != nil {
		notifier = telegram
	}
	opts.Notifier = notifier

	srv, err := server.New(cfg, db, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	services := srv.Services()
	if err := services.Auth.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin")
	}

	jobs := scheduler.New(cfg.Scheduler, services.Subscriptions, services.Analytics, notifier, log)
	if err := jobs.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	jobs.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
