package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shiftmarket/slotswap/internal/api"
	"github.com/shiftmarket/slotswap/internal/config"
	"github.com/shiftmarket/slotswap/internal/db"
	"github.com/shiftmarket/slotswap/internal/ledger"
	"github.com/shiftmarket/slotswap/internal/logging"
	redisclient "github.com/shiftmarket/slotswap/internal/redis"
	"github.com/shiftmarket/slotswap/internal/swap"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.NewLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("swap_request_ttl", cfg.SwapRequestTTL),
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

	migrator, err := db.NewMigrator(pgPool, cfg.MigrationsDir)
	if err != nil {
		logger.Fatal("migrator init error", zap.Error(err))
	}
	if err := migrator.Run(rootCtx); err != nil {
		logger.Fatal("migration error", zap.Error(err))
	}
	if v, err := migrator.Version(rootCtx); err == nil {
		logger.Info("migrations applied", zap.Int64("version", v))
	}
	_ = migrator.Close()

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

	slotStore := ledger.NewPgStore(pgPool)
	slotSvc := ledger.NewService(slotStore, logger)

	swapRepo := swap.NewPgRepository(pgPool)
	locker := redisclient.NewRedisPairLocker(rdb, cfg.LockTTL)
	swapSvc := swap.NewService(swapRepo, locker, logger, cfg)

	router := api.NewRouter(api.RouterConfig{
		Swaps:   swapSvc,
		Slots:   slotSvc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  logger,
		Env:     cfg.Env,
		Version: version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
