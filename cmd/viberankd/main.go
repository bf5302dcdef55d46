package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/database"
	"github.com/ncecere/viberank/internal/httpserver"
	"github.com/ncecere/viberank/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st, closeStore, err := database.OpenStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	redisClient := redisclient.New(cfg.Redis)
	if err := redisclient.Ping(ctx, redisClient); err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		slog.Warn("redis not configured; rate limits, idempotency and read caching are disabled")
	}

	container, err := app.NewContainer(ctx, cfg, st, redisClient)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}
	if container.Observability != nil {
		defer container.Observability.Shutdown(context.Background())
	}

	container.HealthMonitor.Start(ctx)

	server, err := httpserver.New(container)
	if err != nil {
		log.Fatalf("construct server: %v", err)
	}

	slog.Info("viberank listening", slog.String("addr", cfg.Server.ListenAddr), slog.String("driver", cfg.Database.Driver))
	if err := server.Listen(ctx); err != nil && err != context.Canceled {
		log.Fatalf("server stopped: %v", err)
	}
}
