// Command coindeck runs the trading dashboard control plane: adaptive
// market data polling, a simulated trading engine, and an HTTP status
// server.
//
// Usage:
//
//	coindeck --config config.yaml
//	coindeck (simulated feed with defaults)
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mkorolev/coindeck/config"
	"github.com/mkorolev/coindeck/internal"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	app, err := internal.NewApp(cfg, logger)
	if err != nil {
		logger.Fatal("build app", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("app exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
