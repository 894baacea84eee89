// Command simulator runs the in-memory development backend: the REST
// endpoints and the seat-event stream the client core consumes, with
// seeded fixture concerts and TTL-enforced holds.
package main

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/stagepass/seatsync/internal/config"
	"github.com/stagepass/seatsync/internal/logger"
	"github.com/stagepass/seatsync/internal/sim"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Env)
	defer func() { _ = logger.Sync() }()

	rdb := config.NewRedisClient(cfg)
	store := sim.NewStore(cfg.HoldTTL, rdb)
	sim.Seed(store)
	store.RestoreHolds(context.Background())

	e := echo.New()
	e.HideBanner = true
	sim.NewServer(store).Register(e)

	addr := ":" + cfg.SimPort
	logger.Info("simulator listening",
		zap.String("addr", addr),
		zap.Int("hold_ttl_seconds", cfg.HoldTTL),
		zap.Bool("redis", rdb != nil),
	)
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
