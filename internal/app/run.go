package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"mdhub/config"
	"mdhub/internal/feed"
	"mdhub/internal/ratelimit"
	"mdhub/internal/server"
	"mdhub/internal/snapshot"
	"mdhub/internal/subscription"
	"mdhub/pkg/storage/postgres"
	"mdhub/pkg/storage/redis"

	"go.uber.org/zap"
)

// Run wires the service together and serves until interrupted. The
// updates channel is fed by the upstream exchange connector, which lives
// outside this service.
func Run(cfg *config.Config, logger *zap.Logger, updates <-chan feed.MarketUpdate) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm tier storage
	postgresClient, err := postgres.InitializeAndMigrateSnapshots(cfg.Postgres, true)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer postgresClient.Close()

	health := snapshot.NewHealth()
	var tiers []snapshot.Tier

	// Hot tier only when configured; the cascade runs fine without it.
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		hot, err := snapshot.NewHotTier(redisClient, health,
			cfg.Redis.CutoffTime, cfg.Redis.CutoffZone, logger)
		if err != nil {
			return fmt.Errorf("failed to build hot tier: %w", err)
		}
		tiers = append(tiers, hot.Tier())
	} else {
		health.SetHot(false)
		logger.Info("hot tier disabled, snapshots go straight to warm storage")
	}

	warm := snapshot.NewWarmTier(postgresClient, health, cfg.Warm.MinInterval, logger)
	tiers = append(tiers, warm.Tier())

	archiver, err := snapshot.NewArchiver(cfg.Archive.BaseDir, cfg.Archive.QueueSize, health, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	defer archiver.Close()
	tiers = append(tiers, archiver.Tier())

	store := snapshot.NewTieredStore(logger, tiers...)

	// Admission control
	ledger := ratelimit.NewCapacityLedger(modeCapacities(), logger)
	registry := subscription.NewRegistry()
	manager := subscription.NewManager(ledger, logger)

	srv := server.New(cfg.Server, registry, manager, health, logger)

	pipeline := feed.NewPipeline(store, srv.Broadcaster(), logger)
	go pipeline.Run(ctx, updates)

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Run() }()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down",
			zap.Int64("updates_processed", pipeline.Processed()),
			zap.Int64("archive_written", archiver.Written()),
			zap.Int64("archive_dropped", archiver.Dropped()))
		return nil
	}
}

// modeCapacities gives the capacity reserver one cap per feed mode,
// sized to the largest individual limit any user type gets.
func modeCapacities() map[string]int {
	caps := make(map[string]int, len(subscription.Categories))
	for _, category := range subscription.Categories {
		limit, ok := subscription.LimitFor(subscription.UserPlus, category)
		if !ok {
			limit, _ = subscription.LimitFor(subscription.UserNormal, category)
		}
		caps[category.Mode()] = limit.Individual
	}
	return caps
}
