package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jw6ventures/bookings/internal/apps"
	appauth "github.com/jw6ventures/bookings/internal/auth"
	"github.com/jw6ventures/bookings/internal/availability"
	"github.com/jw6ventures/bookings/internal/cache"
	"github.com/jw6ventures/bookings/internal/config"
	"github.com/jw6ventures/bookings/internal/crypto"
	httpserver "github.com/jw6ventures/bookings/internal/http"
	"github.com/jw6ventures/bookings/internal/logging"
	"github.com/jw6ventures/bookings/internal/notify"
	"github.com/jw6ventures/bookings/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting bookings server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool); err != nil {
		return err
	}
	stor := store.New(pool)

	var rdb goredis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := goredis.NewClient(opts)
		defer func() { _ = client.Close() }()
		rdb = client
	} else {
		logger.Warn("APP_REDIS_URL not set; schedule cache is local to this process")
	}

	schedules := cache.NewSchedules(stor.Schedules, rdb, cfg.RevalidateInterval)
	if err := schedules.Subscribe(ctx); err != nil {
		logger.Warn("schedule invalidation subscription failed", "error", err)
	}

	sealer, err := crypto.NewXChaChaService(cfg.KeysEncryptionKeyBytes())
	if err != nil {
		return err
	}

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.SMTPAddr != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		logger.Warn("APP_SMTP_ADDR not set; notices are only logged")
	}
	dispatcher := notify.NewDispatcher(mailer)

	catalog, err := apps.LoadCatalog()
	if err != nil {
		return err
	}
	appsService := apps.NewService(catalog, stor, sealer, dispatcher)
	if err := appsService.Seed(ctx); err != nil {
		return err
	}

	sessionManager := appauth.NewSessionManager(cfg)
	authService, err := appauth.NewService(ctx, cfg, stor.Users, sessionManager)
	if err != nil {
		return err
	}

	router := httpserver.NewRouter(cfg, httpserver.Services{
		Health:       stor,
		Auth:         authService,
		Availability: availability.NewService(stor, schedules),
		Apps:         appsService,
	})
	defer router.Stop()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("pending notices abandoned", "error", err)
	}
	schedules.Wait()
	return nil
}
