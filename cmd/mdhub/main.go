package main

import (
	"mdhub/config"
	"mdhub/internal/app"
	"mdhub/internal/feed"
	"mdhub/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// The upstream exchange connector publishes decoded updates here.
	updates := make(chan feed.MarketUpdate, 1024)

	if err := app.Run(cfg, log, updates); err != nil {
		log.Fatal("service failed", zap.Error(err))
	}
}
