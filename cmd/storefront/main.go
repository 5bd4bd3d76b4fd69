package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/storefront/internal/app"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer l.Sync()
	zap.ReplaceGlobals(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to start storefront", zap.Error(err))
	}

	if err := a.Run(ctx); err != nil {
		l.Error("storefront stopped with error", zap.Error(err))
		os.Exit(1)
	}
	l.Info("storefront stopped")
}
