package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shiftmarket/slotswap/internal/config"
	"github.com/shiftmarket/slotswap/internal/db"
	"github.com/shiftmarket/slotswap/internal/logging"
	redisclient "github.com/shiftmarket/slotswap/internal/redis"
	"github.com/shiftmarket/slotswap/internal/swap"
)

// The sweeper is the opt-in liveness extension: the negotiator itself never
// auto-resolves an expired pending request, so slots stay frozen until an
// operator runs this process.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.NewLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("sweeper starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	repo := swap.NewPgRepository(pgPool)
	locker := redisclient.NewRedisPairLocker(rdb, cfg.LockTTL)
	svc := swap.NewService(repo, locker, logger, cfg)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *swap.Service, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	swept, err := svc.SweepExpired(runCtx)
	if err != nil {
		logger.Error("sweep run error", zap.Error(err))
		return
	}
	logger.Info("sweep run complete",
		zap.Int("swept", swept),
		zap.Duration("took", time.Since(start)),
	)
}
