// Command cdpengine runs the collateralized debt engine: it keeps the
// collateral and debt ledgers, prices collateral through an exchange feed
// (or fixed simulation prices), watches account health and serves the
// engine over HTTP.
//
// Usage:
//
//	cdpengine --config config.yaml
//	cdpengine --setup (runs the configuration wizard)
//
// Optional environment variables:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Hyperliquid: HYPERLIQUID_API_URL
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cdpengine/config"
	"github.com/vadiminshakov/cdpengine/internal"
	"github.com/vadiminshakov/cdpengine/internal/setup"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if flags.Setup {
		if err := setup.RunTUI(flags.Path); err != nil {
			log.Fatal(err)
		}
	}

	cfg, err := config.Load(flags.Path)
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	app, err := internal.NewApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create engine", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("engine stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("engine stopped")
}
