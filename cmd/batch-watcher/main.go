package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"donorsync/internal/config"
	"donorsync/internal/logging"
	"donorsync/internal/registry"
	"donorsync/internal/storage"
	"donorsync/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var reg *registry.Service
	if strings.TrimSpace(cfg.SheetsCredentialsFile) != "" && strings.TrimSpace(cfg.SpreadsheetID) != "" {
		client, err := registry.NewClient(ctx, cfg)
		must(err)
		reg = registry.NewService(db, client, cfg, log)
	}

	svc := watcher.NewService(db, cfg, reg, log)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
