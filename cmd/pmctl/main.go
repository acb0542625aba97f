package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pmsystem/pmdash/config"
	"github.com/pmsystem/pmdash/internal/cli"
	"github.com/pmsystem/pmdash/internal/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Environment); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	root := cli.NewRootCommand(cli.Options{Config: cfg, Version: version})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", cli.Describe(err))
		logger.Sync()
		os.Exit(1)
	}
}
