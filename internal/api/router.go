package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Swaps   Negotiator
	Slots   SlotLedger
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/slots", createSlotHandler(cfg.Slots))
	r.Get("/slots/{id}", getSlotHandler(cfg.Slots))
	r.Post("/slots/{id}/status", setSlotStatusHandler(cfg.Slots))

	r.Post("/swaps", createSwapHandler(cfg.Swaps))
	r.Get("/swaps/{id}", getSwapHandler(cfg.Swaps))
	r.Post("/swaps/{id}/respond", respondSwapHandler(cfg.Swaps))
	r.Post("/swaps/{id}/cancel", cancelSwapHandler(cfg.Swaps))

	r.Get("/users/{userID}/slots", listSlotsHandler(cfg.Slots))
	r.Get("/users/{userID}/swaps/incoming", listSwapsHandler(cfg.Swaps, "incoming"))
	r.Get("/users/{userID}/swaps/outgoing", listSwapsHandler(cfg.Swaps, "outgoing"))
	r.Get("/users/{userID}/swaps/history", swapHistoryHandler(cfg.Swaps))

	return r
}
