package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"idgateway/internal/config"
	"idgateway/internal/ingress"
	"idgateway/internal/pool"
	"idgateway/internal/queuestore"
	"idgateway/internal/remoteapi"
	"idgateway/internal/shared/logger"
	"idgateway/internal/validate"
	"idgateway/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	existenceChecker := remoteapi.NewExistenceChecker(cfg.ExistenceCheckURL)

	queue := queuestore.New(filepath.Join(cfg.DataDir, "profiles_queue.json"), existenceChecker)
	if err := queue.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load queue store")
	}

	connPool := pool.New(filepath.Join(cfg.DataDir, "config_proxies.json"))
	if err := connPool.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load connection pool")
	}

	validator := validate.New(connPool, validate.Config{
		AccountServiceAPIKey: cfg.AccountServiceAPIKey,
	})
	downstream := remoteapi.NewDownstreamClient(cfg.DownstreamWriteURL, cfg.DownstreamAPIKey)

	loop := worker.New(queue, connPool, validator, downstream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Start(ctx)
	log.Info().Msg("worker loop started")

	server := ingress.New(cfg.Port, cfg.IngressAPIKey, queue, connPool)
	go func() {
		if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error().Err(err).Msg("ingress server stopped unexpectedly")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("ingress server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	loop.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ingress server shutdown error")
	}

	log.Info().Msg("shutdown complete")
}
