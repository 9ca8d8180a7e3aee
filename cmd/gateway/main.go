package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/socialhub/edge-gateway/internal/auth"
	"github.com/socialhub/edge-gateway/internal/config"
	"github.com/socialhub/edge-gateway/internal/proxy"
	"github.com/socialhub/edge-gateway/internal/ratelimit"
	"github.com/socialhub/edge-gateway/internal/route"
	"github.com/socialhub/edge-gateway/internal/server"
	"github.com/socialhub/edge-gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("edge-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	store := ratelimit.NewRedisStore(redisClient)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("Rate limit store unreachable: %v", err)
	}
	cancelPing()

	table, err := route.Default(cfg.Backends)
	if err != nil {
		log.Fatalf("Failed to build route table: %v", err)
	}

	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	validator := auth.NewValidator(cfg.Auth.JWTSecret)
	dispatcher := proxy.NewDispatcher(cfg.Proxy.Timeout, logger)
	gateway := server.NewGatewayHandler(table, validator, dispatcher, logger)

	srv := server.New(cfg, logger, limiter, gateway)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("gateway shutdown complete")
}
