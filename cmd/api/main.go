package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/config"
	"github.com/pmsystem/pmdash/internal/auth"
	"github.com/pmsystem/pmdash/internal/bootstrap"
	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Environment); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, db, err := bootstrap.OpenStores(ctx, &cfg.Database)
	if err != nil {
		logger.Zlog.Fatal("database", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	rdb, err := bootstrap.OpenRedis(ctx, &cfg.Redis)
	if err != nil {
		logger.Zlog.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	objects, filesDir, err := bootstrap.OpenObjectStore(ctx, &cfg.Storage)
	if err != nil {
		logger.Zlog.Fatal("object store", zap.Error(err))
	}

	router, authSvc := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:        "pmdash-api",
		Version:            cfg.App.Version,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		LoginRatePerMinute: cfg.Server.LoginRatePerMinute,
		WebhookSecret:      cfg.Payments.WebhookSecret,
		DB:                 db,
		Redis:              rdb,
		Stores:             stores,
		Issuer:             auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Objects:            objects,
		FilesDir:           filesDir,
	})

	if err := authSvc.EnsureDefaultAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		logger.Zlog.Fatal("default admin", zap.Error(err))
	}

	sched, err := uploads.NewScheduler(uploads.NewSweeper(objects, stores.Uploads, cfg.Sweeper.Grace), cfg.Sweeper.Schedule)
	if err != nil {
		logger.Zlog.Fatal("sweeper", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Zlog.Info("listening", zap.String("addr", srv.Addr), zap.String("db", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Zlog.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Zlog.Error("shutdown", zap.Error(err))
	}
}
