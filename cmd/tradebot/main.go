package main

import (
	"context"
	"log"
	"os"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/adapters/logger"
	"cryptoMegaBot/internal/adapters/sqlite"
	"cryptoMegaBot/internal/app"
)

// Exit codes per SPEC_FULL.md §6: 0 normal, 1 fatal config/credential
// error, 2 unrecoverable persistence error.
const (
	exitOK                 = 0
	exitConfigError        = 1
	exitPersistenceError   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("FATAL: failed to load configuration: %v", err)
		return exitConfigError
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(context.Background(), err, "failed to initialize database repository")
		return exitPersistenceError
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "database repository initialized")

	svc, err := app.NewTradingService(app.Dependencies{
		Cfg:      cfg,
		Logger:   appLogger,
		Trades:   repo,
		Alerts:   repo.Alerts(),
		Balances: repo.Balances(),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "failed to initialize trading service")
		return exitConfigError
	}
	appLogger.Info(context.Background(), "trading service initialized")

	if err := svc.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "trading service exited with error")
		return exitPersistenceError
	}

	appLogger.Info(context.Background(), "application finished gracefully")
	return exitOK
}
