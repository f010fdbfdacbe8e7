package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/infinite-story/internal/config"
	"github.com/jwebster45206/infinite-story/internal/logger"
	"github.com/jwebster45206/infinite-story/internal/metrics"
	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/internal/services/events"
	"github.com/jwebster45206/infinite-story/internal/services/queue"
	"github.com/jwebster45206/infinite-story/internal/storage"
	"github.com/jwebster45206/infinite-story/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Infinite Story Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"worker_id", cfg.WorkerID)

	db, err := storage.OpenSQLite(cfg.DatabasePath, log)
	if err != nil {
		log.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", "error", err)
		}
	}()

	redisClient, err := storage.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	sessions := storage.NewRedisSessionStore(redisClient, cfg.SessionTTL, log)
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := sessions.WaitForConnection(ctx); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis connection established successfully")

	broadcaster := events.NewBroadcaster(redisClient, log)
	interactions := queue.NewInteractionQueue(queue.NewClientFromRedis(redisClient, log))
	stories := services.NewStoryService(db, sessions, log,
		services.WithPublisher(broadcaster),
		services.WithLock(cfg.SessionLockTTL, 0, 0),
	)

	w := worker.New(interactions, stories, broadcaster, log, cfg.WorkerID, worker.WithMetrics(metrics.New()))

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
		}
	}()

	log.Info("Worker started, waiting for requests...")

	<-quit
	log.Info("Worker shutdown signal received")
	w.Stop()

	// Give worker time to finish current request
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Worker did not finish in time")
	}

	log.Info("Worker exited")
}
