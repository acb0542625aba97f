package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/config"
	"github.com/pmsystem/pmdash/internal/bootstrap"
	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/storage/postgres"
	"github.com/pmsystem/pmdash/internal/uploads"
)

func load() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Environment); err != nil {
		log.Fatalf("logger: %v", err)
	}
	return cfg
}

// RunSweep deletes orphaned uploads once and exits.
func RunSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfg := load()
	defer logger.Sync()

	grace := fs.Duration("grace", cfg.Sweeper.Grace, "minimum age of an orphaned upload")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stores, db, err := bootstrap.OpenStores(ctx, &cfg.Database)
	if err != nil {
		logger.Zlog.Fatal("database", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	objects, _, err := bootstrap.OpenObjectStore(ctx, &cfg.Storage)
	if err != nil {
		logger.Zlog.Fatal("object store", zap.Error(err))
	}

	n, err := uploads.NewSweeper(objects, stores.Uploads, *grace).Run(ctx)
	if err != nil {
		logger.Zlog.Fatal("sweep", zap.Error(err))
	}
	fmt.Printf("removed %d orphaned upload(s)\n", n)
}

// RunMigrate applies the schema and exits.
func RunMigrate(_ []string) {
	cfg := load()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Zlog.Fatal("database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Zlog.Fatal("migrate", zap.Error(err))
	}
	fmt.Println("schema up to date")
}
